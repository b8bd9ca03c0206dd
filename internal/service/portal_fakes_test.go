package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/internal/repository"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

// memoryOutbox stands in for notification_outbox plus notifications.
type memoryOutbox struct {
	mu            sync.Mutex
	entries       []models.OutboxEntry
	notifications []models.Notification
	failFor       map[string]error
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{failFor: map[string]error{}}
}

func (m *memoryOutbox) add(intents []models.NotificationIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, intent := range intents {
		m.entries = append(m.entries, models.OutboxEntry{
			ID:        uuid.NewString(),
			UserID:    intent.UserID,
			Title:     intent.Title,
			Body:      intent.Body,
			Type:      intent.Type,
			Link:      intent.Link,
			Status:    models.OutboxPending,
			CreatedAt: time.Now().UTC(),
		})
	}
}

func (m *memoryOutbox) ListUndelivered(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OutboxEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		if entry.Status == models.OutboxPending && len(out) < limit {
			out = append(out, entry)
		}
	}
	for _, entry := range m.entries {
		if entry.Status == models.OutboxFailed && entry.Attempts < maxAttempts && len(out) < limit {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memoryOutbox) Deliver(ctx context.Context, entry models.OutboxEntry) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[entry.UserID]; err != nil {
		return nil, err
	}
	for i := range m.entries {
		if m.entries[i].ID != entry.ID {
			continue
		}
		if m.entries[i].Status == models.OutboxDelivered {
			return nil, sql.ErrNoRows
		}
		n := entry.Notification()
		n.ID = uuid.NewString()
		n.CreatedAt = time.Now().UTC()
		m.notifications = append(m.notifications, n)
		m.entries[i].Status = models.OutboxDelivered
		m.entries[i].NotificationID = &n.ID
		return &n, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryOutbox) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].Status = models.OutboxFailed
			m.entries[i].Attempts++
			r := reason
			m.entries[i].LastError = &r
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryOutbox) notificationsFor(userID string) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (m *memoryOutbox) statusCount(status models.OutboxStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.entries {
		if entry.Status == status {
			count++
		}
	}
	return count
}

// memoryDocuments implements the document repositories used by services.
type memoryDocuments struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	outbox    *memoryOutbox
	createErr error
}

func newMemoryDocuments(outbox *memoryOutbox) *memoryDocuments {
	return &memoryDocuments{docs: map[string]*models.Document{}, outbox: outbox}
}

func (m *memoryDocuments) put(doc models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = &doc
}

func (m *memoryDocuments) Create(ctx context.Context, doc *models.Document, intents []models.NotificationIntent) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	copyDoc := *doc
	m.docs[doc.ID] = &copyDoc
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

func (m *memoryDocuments) GetByID(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (m *memoryDocuments) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, doc := range m.docs {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.UserID != "" && doc.UserID != filter.UserID {
			continue
		}
		out = append(out, *doc)
	}
	return out, len(out), nil
}

func (m *memoryDocuments) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, doc := range m.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (m *memoryDocuments) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, id)
	return nil
}

func (m *memoryDocuments) Review(ctx context.Context, id string, status models.ReviewStatus, reason *string, reviewerID string, at time.Time, intents []models.NotificationIntent) error {
	m.mu.Lock()
	doc, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	doc.Status = status
	doc.RejectionReason = reason
	reviewer := reviewerID
	doc.ReviewedBy = &reviewer
	doc.ReviewedAt = &at
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

func (m *memoryDocuments) ListLocal(ctx context.Context, limit int) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, doc := range m.docs {
		if doc.Storage == storage.ProviderLocal && doc.Path != nil {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryDocuments) MoveToDrive(ctx context.Context, id, driveFileID string, webViewLink *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Storage = storage.ProviderDrive
	doc.DriveFileID = &driveFileID
	doc.WebViewLink = webViewLink
	doc.Path = nil
	return nil
}

// memoryPayments implements payment and installment repositories.
type memoryPayments struct {
	mu           sync.Mutex
	payments     []models.Payment
	installments map[string]*models.Installment
	outbox       *memoryOutbox
}

func newMemoryPayments(outbox *memoryOutbox) *memoryPayments {
	return &memoryPayments{installments: map[string]*models.Installment{}, outbox: outbox}
}

func (m *memoryPayments) put(inst models.Installment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installments[inst.ID] = &inst
}

func (m *memoryPayments) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	m.payments = append(m.payments, *payment)
	return nil
}

func (m *memoryPayments) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if filter.UserID == "" || p.UserID == filter.UserID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *memoryPayments) CreateInstallment(ctx context.Context, inst *models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	copyInst := *inst
	m.installments[inst.ID] = &copyInst
	return nil
}

func (m *memoryPayments) GetInstallment(ctx context.Context, id string) (*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyInst := *inst
	return &copyInst, nil
}

func (m *memoryPayments) ListInstallments(ctx context.Context, filter models.PaymentFilter) ([]models.Installment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Installment
	for _, inst := range m.installments {
		if filter.UserID != "" && inst.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && inst.CurrentStatus() != filter.Status {
			continue
		}
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNumber < out[j].InstallmentNumber })
	return out, len(out), nil
}

func (m *memoryPayments) AttachSupport(ctx context.Context, params repository.AttachSupportParams, intents []models.NotificationIntent) error {
	m.mu.Lock()
	inst, ok := m.installments[params.InstallmentID]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	ref, store, mimeType, at := params.Reference, params.Storage, params.MimeType, params.UploadedAt
	inst.Support = &ref
	inst.SupportStorage = &store
	inst.SupportMimeType = &mimeType
	inst.Observations = params.Observations
	inst.SupportUploadedAt = &at
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

func (m *memoryPayments) ReviewInstallment(ctx context.Context, id string, status models.ReviewStatus, reason *string, reviewerID string, at time.Time, intents []models.NotificationIntent) error {
	m.mu.Lock()
	inst, ok := m.installments[id]
	if !ok {
		m.mu.Unlock()
		return sql.ErrNoRows
	}
	inst.Status = &status
	inst.RejectionReason = reason
	reviewer := reviewerID
	inst.ReviewedBy = &reviewer
	inst.ReviewedAt = &at
	m.mu.Unlock()
	m.outbox.add(intents)
	return nil
}

// memoryObjectStore is an ObjectStore keeping bytes in a map.
type memoryObjectStore struct {
	mu        sync.Mutex
	provider  string
	objects   map[string][]byte
	uploadErr error
	uploads   int
	deletes   int
}

func newMemoryObjectStore(provider string) *memoryObjectStore {
	return &memoryObjectStore{provider: provider, objects: map[string][]byte{}}
}

func (s *memoryObjectStore) Provider() string { return s.provider }

func (s *memoryObjectStore) Upload(ctx context.Context, r io.Reader, filename, mimeType string) (*storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	id := filename
	if s.provider == storage.ProviderDrive {
		id = fmt.Sprintf("drive-%d", s.uploads)
	}
	s.objects[id] = data
	obj := &storage.Object{ID: id, Name: filename, MimeType: mimeType, SizeBytes: int64(len(data)), CreatedAt: time.Now().UTC()}
	if s.provider == storage.ProviderDrive {
		obj.WebViewLink = "https://drive.google.com/file/d/" + id + "/view"
	}
	return obj, nil
}

func (s *memoryObjectStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[id]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryObjectStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if _, ok := s.objects[id]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, id)
	return nil
}

func (s *memoryObjectStore) List(ctx context.Context) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Object, 0, len(s.objects))
	for id, data := range s.objects {
		out = append(out, storage.Object{ID: id, Name: id, SizeBytes: int64(len(data))})
	}
	return out, nil
}

func (s *memoryObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// staffDirectory resolves staff recipients per role.
type staffDirectory map[models.UserRole][]string

func (d staffDirectory) ListIDsByRoles(ctx context.Context, roles []models.UserRole) ([]string, error) {
	var ids []string
	for _, role := range roles {
		ids = append(ids, d[role]...)
	}
	return ids, nil
}

type failingDirectory struct{}

func (failingDirectory) ListIDsByRoles(ctx context.Context, roles []models.UserRole) ([]string, error) {
	return nil, errors.New("users table unavailable")
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

// Minimal valid file headers for MIME sniffing.
var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	exeBytes = []byte{'M', 'Z', 0x90, 0x00, 0x03, 0x00, 0x00, 0x00, 0x04, 0x00}
)
