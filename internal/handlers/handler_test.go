// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides the in-memory fakes shared by the handler tests.
// Handlers are exercised through httptest without Postgres, Valkey or S3.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"graphiste/internal/ai"
	"graphiste/internal/conversation"
	"graphiste/internal/generation"
	"graphiste/internal/middleware"
	"graphiste/internal/models"
	"graphiste/internal/payments"
	"graphiste/internal/store"
)

var (
	testFreePlan = &models.SubscriptionPlan{
		ID: uuid.New(), Slug: "gratuit", Name: "Gratuit", MaxResolution: models.Resolution1K,
		FreeGenerations: 3, IsActive: true, Currency: "XOF",
	}
	testProPlan = &models.SubscriptionPlan{
		ID: uuid.New(), Slug: "pro", Name: "Pro", PriceFCFA: 15000, Currency: "XOF",
		MaxResolution: models.Resolution4K, CreditsPerMonth: 60, DurationDays: 30, IsActive: true,
	}
)

// fakeStore implements every store interface the handlers consume.
type fakeStore struct {
	profiles  map[uuid.UUID]*models.Profile
	sub       *models.UserSubscription
	plan      *models.SubscriptionPlan
	history   []models.CreditTransaction
	images    map[uuid.UUID]*models.GeneratedImage
	payments  []models.PaymentTransaction
	templates map[uuid.UUID]*models.ReferenceTemplate
	roles     map[uuid.UUID][]models.Role
	stats     store.Stats
	users     []models.UserSummary

	grants        []int
	grantErr      error
	createErr     error
	lastStatus    models.PaymentStatus
	recordedImage *models.GeneratedImage
	err           error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:  map[uuid.UUID]*models.Profile{},
		images:    map[uuid.UUID]*models.GeneratedImage{},
		templates: map[uuid.UUID]*models.ReferenceTemplate{},
		roles:     map[uuid.UUID][]models.Role{},
		plan:      testFreePlan,
	}
}

func (f *fakeStore) addProfile(email string) uuid.UUID {
	id := uuid.New()
	f.profiles[id] = &models.Profile{ID: id, Email: email}
	return id
}

func (f *fakeStore) FindProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	return f.profiles[id], f.err
}

func (f *fakeStore) ListActivePlans(context.Context) ([]models.SubscriptionPlan, error) {
	return []models.SubscriptionPlan{*testFreePlan, *testProPlan}, f.err
}

func (f *fakeStore) GetOrCreateSubscription(_ context.Context, userID uuid.UUID) (*models.UserSubscription, *models.SubscriptionPlan, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.sub == nil {
		f.sub = &models.UserSubscription{UserID: userID, PlanID: testFreePlan.ID, Status: models.SubscriptionActive}
	}
	return f.sub, f.plan, nil
}

func (f *fakeStore) FreePlan(context.Context) (*models.SubscriptionPlan, error) {
	return testFreePlan, f.err
}

func (f *fakeStore) CreditHistory(_ context.Context, _ uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	if len(f.history) > limit {
		return f.history[:limit], f.err
	}
	return f.history, f.err
}

func (f *fakeStore) ListImages(_ context.Context, userID uuid.UUID, _, _ int) ([]models.GeneratedImage, error) {
	var out []models.GeneratedImage
	for _, img := range f.images {
		if img.UserID == userID {
			out = append(out, *img)
		}
	}
	return out, f.err
}

func (f *fakeStore) DeleteImage(_ context.Context, userID, id uuid.UUID) (*models.GeneratedImage, error) {
	img, ok := f.images[id]
	if !ok || img.UserID != userID {
		return nil, f.err
	}
	delete(f.images, id)
	return img, nil
}

func (f *fakeStore) ListUserPayments(_ context.Context, userID uuid.UUID, _ int) ([]models.PaymentTransaction, error) {
	var out []models.PaymentTransaction
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeStore) GetTemplate(_ context.Context, id uuid.UUID) (*models.ReferenceTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, f.err
	}
	cp := *t
	return &cp, f.err
}

func (f *fakeStore) RecordGeneration(_ context.Context, img *models.GeneratedImage, charge store.Charge) (*models.GeneratedImage, int, error) {
	saved := *img
	saved.ID = uuid.New()
	saved.CreditsUsed = charge.Cost
	f.images[saved.ID] = &saved
	f.recordedImage = &saved
	if charge.UseFreeGeneration {
		f.sub.FreeGenerationsUsed++
	}
	f.sub.CreditsRemaining -= charge.Cost
	return &saved, f.sub.CreditsRemaining, nil
}

// Admin side.

func (f *fakeStore) Stats(context.Context) (*store.Stats, error) {
	st := f.stats
	return &st, f.err
}

func (f *fakeStore) ListUsers(_ context.Context, _, _ int) ([]models.UserSummary, error) {
	return f.users, f.err
}

func (f *fakeStore) AddRole(_ context.Context, userID uuid.UUID, role models.Role) error {
	for _, r := range f.roles[userID] {
		if r == role {
			return nil
		}
	}
	f.roles[userID] = append(f.roles[userID], role)
	return f.err
}

func (f *fakeStore) RemoveRole(_ context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	roles := f.roles[userID]
	for i, r := range roles {
		if r == role {
			f.roles[userID] = append(roles[:i], roles[i+1:]...)
			return true, nil
		}
	}
	return false, f.err
}

func (f *fakeStore) GrantCredits(_ context.Context, _ uuid.UUID, amount int, _ models.CreditKind, _ string) (int, error) {
	if f.grantErr != nil {
		return 0, f.grantErr
	}
	f.grants = append(f.grants, amount)
	total := 0
	for _, g := range f.grants {
		total += g
	}
	return total, nil
}

func (f *fakeStore) ListPayments(_ context.Context, status models.PaymentStatus, _ int) ([]models.PaymentTransaction, error) {
	f.lastStatus = status
	var out []models.PaymentTransaction
	for _, p := range f.payments {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeStore) ListTemplates(_ context.Context, flt models.TemplateFilter) ([]models.ReferenceTemplate, error) {
	var out []models.ReferenceTemplate
	for _, t := range f.templates {
		if flt.OnlyActive && !t.IsActive {
			continue
		}
		if flt.Domain != "" && t.Domain != flt.Domain {
			continue
		}
		out = append(out, *t)
	}
	return out, f.err
}

func (f *fakeStore) TemplateDomains(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, t := range f.templates {
		if t.IsActive && !seen[t.Domain] {
			seen[t.Domain] = true
			out = append(out, t.Domain)
		}
	}
	return out, f.err
}

func (f *fakeStore) TemplateSlugExists(_ context.Context, slug string) (bool, error) {
	for _, t := range f.templates {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, f.err
}

func (f *fakeStore) CreateTemplate(_ context.Context, t *models.ReferenceTemplate) error {
	if f.createErr != nil {
		return f.createErr
	}
	t.ID = uuid.New()
	cp := *t
	f.templates[t.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, t *models.ReferenceTemplate) (bool, error) {
	if _, ok := f.templates[t.ID]; !ok {
		return false, f.err
	}
	cp := *t
	f.templates[t.ID] = &cp
	return true, nil
}

func (f *fakeStore) SetTemplateActive(_ context.Context, id uuid.UUID, active bool) (bool, error) {
	t, ok := f.templates[id]
	if !ok {
		return false, f.err
	}
	t.IsActive = active
	return true, nil
}

func (f *fakeStore) DeleteTemplate(_ context.Context, id uuid.UUID) (*models.ReferenceTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, f.err
	}
	delete(f.templates, id)
	return t, nil
}

// Payments side.

func (f *fakeStore) GetPlanByID(_ context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	for _, p := range []*models.SubscriptionPlan{testFreePlan, testProPlan} {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p *models.PaymentTransaction) error {
	p.ID = uuid.New()
	f.payments = append(f.payments, *p)
	return nil
}

func (f *fakeStore) AttachCheckout(_ context.Context, id uuid.UUID, providerTxID, checkoutURL string) error {
	for i := range f.payments {
		if f.payments[i].ID == id {
			f.payments[i].ProviderTransactionID = &providerTxID
			f.payments[i].CheckoutURL = &checkoutURL
		}
	}
	return nil
}

func (f *fakeStore) SetPaymentStatus(_ context.Context, id uuid.UUID, status models.PaymentStatus) error {
	for i := range f.payments {
		if f.payments[i].ID == id {
			f.payments[i].Status = status
		}
	}
	return nil
}

func (f *fakeStore) ApplyPayment(_ context.Context, u store.PaymentUpdate) (*store.PaymentOutcome, error) {
	for i := range f.payments {
		p := &f.payments[i]
		if p.ProviderTransactionID == nil || *p.ProviderTransactionID != u.ProviderTransactionID {
			continue
		}
		if p.Status == u.Status {
			return &store.PaymentOutcome{Payment: p, Duplicate: true}, nil
		}
		p.Status = u.Status
		return &store.PaymentOutcome{Payment: p, Activated: u.Status == models.PaymentCompleted}, nil
	}
	return nil, store.ErrPaymentNotFound
}

// fakeConvs is an in-memory conversation store.
type fakeConvs struct {
	states map[uuid.UUID]conversation.State
	now    time.Time
}

func newFakeConvs() *fakeConvs {
	return &fakeConvs{states: map[uuid.UUID]conversation.State{}, now: time.Now()}
}

func (f *fakeConvs) Get(_ context.Context, userID uuid.UUID) (conversation.State, error) {
	if st, ok := f.states[userID]; ok {
		return st, nil
	}
	return conversation.New(f.now), nil
}

func (f *fakeConvs) Save(_ context.Context, userID uuid.UUID, st conversation.State) error {
	f.states[userID] = st
	return nil
}

func (f *fakeConvs) Delete(_ context.Context, userID uuid.UUID) error {
	delete(f.states, userID)
	return nil
}

// fakeFiles records object storage calls.
type fakeFiles struct {
	mu      sync.Mutex
	public  map[string]string
	private map[string]string
	deleted []string
	failPut bool
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{public: map[string]string{}, private: map[string]string{}}
}

func (f *fakeFiles) PutPublic(_ context.Context, key, contentType string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return "", errors.New("s3 unavailable")
	}
	f.public[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeFiles) PutPrivate(_ context.Context, key, contentType string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("s3 unavailable")
	}
	f.private[key] = contentType
	return nil
}

func (f *fakeFiles) PresignPrivate(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.example.com/private/" + key + "?X-Amz-Signature=abc", nil
}

func (f *fakeFiles) DeletePublic(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return nil
}

// fakeAI implements the assistant and generation AI interfaces.
type fakeAI struct {
	reply       string
	err         error
	gotSystem   string
	gotMessages []ai.Message
	gotURL      string
	gotInstr    string
	gotLanguage string
	gotFilename string
	gotAudio    []byte
	image       *ai.Image
	flagged     []string
	active      string
	providers   map[string]bool
}

func (f *fakeAI) Chat(_ context.Context, system string, messages []ai.Message) (string, error) {
	f.gotSystem, f.gotMessages = system, messages
	return f.reply, f.err
}

func (f *fakeAI) AnalyzeImage(_ context.Context, url, instruction string) (string, error) {
	f.gotURL, f.gotInstr = url, instruction
	return f.reply, f.err
}

func (f *fakeAI) Transcribe(_ context.Context, audio io.Reader, filename, language string) (string, error) {
	f.gotAudio, _ = io.ReadAll(audio)
	f.gotFilename, f.gotLanguage = filename, language
	return f.reply, f.err
}

func (f *fakeAI) CheckPrompt(context.Context, string) (*ai.ModerationResult, error) {
	return &ai.ModerationResult{Safe: len(f.flagged) == 0, Categories: f.flagged}, nil
}

func (f *fakeAI) GenerateImage(context.Context, string, ai.ImageOptions) (*ai.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

func (f *fakeAI) SetActive(name string) error {
	if !f.providers[name] {
		return errors.New("provider not registered")
	}
	f.active = name
	return nil
}

func (f *fakeAI) ActiveName() string            { return f.active }
func (f *fakeAI) SupportsImageGeneration() bool { return f.image != nil }

// fakeGateway is a payment provider that accepts any webhook whose
// signature header is "ok".
type fakeGateway struct {
	event   *payments.Event
	initErr error
}

func (g *fakeGateway) Name() models.PaymentProvider { return models.ProviderMoneroo }

func (g *fakeGateway) InitCheckout(_ context.Context, c payments.Checkout) (*payments.Session, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &payments.Session{
		ProviderTransactionID: "py_" + c.PaymentID.String()[:8],
		CheckoutURL:           "https://checkout.example.com/" + c.PaymentID.String(),
	}, nil
}

func (g *fakeGateway) ParseWebhook(header http.Header, _ []byte, _ time.Time) (*payments.Event, error) {
	if header.Get(payments.MonerooSignatureHeader) != "ok" {
		return nil, &payments.Error{Code: payments.CodeInvalidSignature, Reason: "signature mismatch"}
	}
	return g.event, nil
}

// testEnv bundles the handler groups over shared fakes.
type testEnv struct {
	Store   *fakeStore
	Convs   *fakeConvs
	Files   *fakeFiles
	AI      *fakeAI
	Gateway *fakeGateway
	API     *API
	Admin   *Admin
	Public  *Public
	Hooks   *Webhooks
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newFakeStore()
	convs := newFakeConvs()
	files := newFakeFiles()
	fai := &fakeAI{
		image:     pngBytes(t, 64, 64),
		active:    "openai",
		providers: map[string]bool{"openai": true, "mistral": true},
	}
	gw := &fakeGateway{}
	pay := payments.NewService(payments.NewProviders(gw), st, "https://graphiste.example.com/paiement")
	gen := generation.NewService(st, fai, files)

	return &testEnv{
		Store:   st,
		Convs:   convs,
		Files:   files,
		AI:      fai,
		Gateway: gw,
		API:     NewAPI(st, convs, gen, fai, files, pay, nil),
		Admin: NewAdmin(st, fai, files, nil, AIConfig{
			ActiveProvider: "openai",
			Providers: []AIProviderInfo{
				{Name: "openai", Label: "OpenAI", HasKey: true, Active: true},
				{Name: "mistral", Label: "Mistral", HasKey: true},
			},
		}),
		Public: NewPublic(st, nil),
		Hooks:  NewWebhooks(pay),
	}
}

// pngBytes encodes a w x h PNG.
func pngBytes(t *testing.T, w, h int) *ai.Image {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		m.Set(x, h/2, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatal(err)
	}
	return &ai.Image{Data: buf.Bytes(), ContentType: "image/png"}
}

// asUser attaches an authenticated user to req.
func asUser(req *http.Request, id uuid.UUID, roles ...models.Role) *http.Request {
	u := &middleware.User{ID: id, Email: "test@example.com", Roles: roles, Permissions: map[models.Permission]bool{}}
	return req.WithContext(middleware.WithUser(req.Context(), u))
}

// withParams sets chi URL parameters on req.
func withParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody decodes a JSON response into a generic map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}
