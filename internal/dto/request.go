package dto

// CreateRequestRequest opens a help or finance request.
type CreateRequestRequest struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required"`
}

// RespondRequestRequest answers a pending request.
type RespondRequestRequest struct {
	Response string `json:"response" validate:"required"`
}

// RequestQuery captures reviewer list filters.
type RequestQuery struct {
	Status   string `form:"status"`
	UserID   string `form:"userId"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
