package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"graphiste/internal/models"
)

func TestSubscriptionCreatedOnFirstRead(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	userID := testProfile(t, db)
	s := New(db)

	sub, plan, err := s.GetOrCreateSubscription(ctx, userID)
	if err != nil {
		t.Fatalf("GetOrCreateSubscription: %v", err)
	}
	if !plan.IsFree() || plan.FreeGenerations != 5 {
		t.Errorf("plan = %+v, want seeded free plan", plan)
	}
	if sub.CreditsRemaining != 0 || sub.FreeGenerationsUsed != 0 {
		t.Errorf("new subscription = %+v", sub)
	}

	again, _, err := s.GetOrCreateSubscription(ctx, userID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if again.ID != sub.ID {
		t.Error("second read created another subscription")
	}
}

func TestGenerationLedger(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	userID := testProfile(t, db)
	s := New(db)

	if _, err := s.GrantCredits(ctx, userID, 3, models.CreditAdminGrant, "test"); err != nil {
		t.Fatalf("GrantCredits: %v", err)
	}

	img := &models.GeneratedImage{
		UserID: userID, Prompt: "affiche", Resolution: models.Resolution2K,
		ImageURL: "https://cdn.test/a.png", S3Key: "a.png",
	}
	saved, balance, err := s.RecordGeneration(ctx, img, Charge{Cost: 2})
	if err != nil {
		t.Fatalf("RecordGeneration: %v", err)
	}
	if balance != 1 || saved.CreditsUsed != 2 {
		t.Errorf("balance %d credits_used %d, want 1/2", balance, saved.CreditsUsed)
	}

	// A second 2-credit generation must not overdraw, nor leave an image.
	_, _, err = s.RecordGeneration(ctx, &models.GeneratedImage{
		UserID: userID, Prompt: "x", Resolution: models.Resolution2K, ImageURL: "https://cdn.test/b.png",
	}, Charge{Cost: 2})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	images, err := s.ListImages(ctx, userID, 10, 0)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(images) != 1 {
		t.Errorf("images = %d, want 1", len(images))
	}

	history, err := s.CreditHistory(ctx, userID, 10)
	if err != nil {
		t.Fatalf("CreditHistory: %v", err)
	}
	if len(history) != 2 || history[0].Amount != -2 || history[0].BalanceAfter != 1 {
		t.Errorf("history = %+v", history)
	}

	deleted, err := s.DeleteImage(ctx, userID, saved.ID)
	if err != nil || deleted == nil || deleted.S3Key != "a.png" {
		t.Fatalf("DeleteImage = %+v, %v", deleted, err)
	}
	if again, _ := s.DeleteImage(ctx, userID, saved.ID); again != nil {
		t.Error("second delete should find nothing")
	}
}

func TestFreeGenerationsRunOut(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	userID := testProfile(t, db)
	s := New(db)

	if _, _, err := s.GetOrCreateSubscription(ctx, userID); err != nil {
		t.Fatalf("GetOrCreateSubscription: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _, err := s.RecordGeneration(ctx, &models.GeneratedImage{
			UserID: userID, Prompt: "p", Resolution: models.Resolution1K, ImageURL: "https://cdn.test/f.png",
		}, Charge{Cost: 1, UseFreeGeneration: true, FreeLimit: 1})
		if i == 0 && err != nil {
			t.Fatalf("first free generation: %v", err)
		}
		if i == 1 && !errors.Is(err, ErrFreeLimitReached) {
			t.Fatalf("second free generation err = %v, want ErrFreeLimitReached", err)
		}
	}
}

func TestPaymentWebhookIsIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	userID := testProfile(t, db)
	s := New(db)

	plan, err := s.GetPlanBySlug(ctx, "essentiel")
	if err != nil || plan == nil {
		t.Fatalf("GetPlanBySlug: %v", err)
	}
	p := &models.PaymentTransaction{
		UserID: userID, PlanID: plan.ID, Provider: models.ProviderMoneroo,
		Amount: plan.PriceFCFA, Currency: plan.Currency,
	}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	txID := "py_" + uuid.NewString()
	if err := s.AttachCheckout(ctx, p.ID, txID, "https://checkout.test/"+txID); err != nil {
		t.Fatalf("AttachCheckout: %v", err)
	}

	update := PaymentUpdate{
		Provider: models.ProviderMoneroo, ProviderTransactionID: txID,
		Status: models.PaymentCompleted, RawEvent: []byte(`{"event":"payment.success"}`), Now: time.Now(),
	}
	first, err := s.ApplyPayment(ctx, update)
	if err != nil {
		t.Fatalf("ApplyPayment: %v", err)
	}
	if !first.Activated || first.CreditsGranted != plan.CreditsPerMonth {
		t.Errorf("first outcome = %+v", first)
	}

	second, err := s.ApplyPayment(ctx, update)
	if err != nil {
		t.Fatalf("ApplyPayment replay: %v", err)
	}
	if !second.Duplicate || second.CreditsGranted != 0 {
		t.Errorf("replay outcome = %+v, want duplicate", second)
	}

	sub, got, err := s.GetOrCreateSubscription(ctx, userID)
	if err != nil {
		t.Fatalf("GetOrCreateSubscription: %v", err)
	}
	if got.ID != plan.ID || sub.CreditsRemaining != plan.CreditsPerMonth || sub.CurrentPeriodEnd == nil {
		t.Errorf("subscription after payment = %+v on %s", sub, got.Slug)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := New(db)
	slug := "test-" + uuid.NewString()[:8]
	t.Cleanup(func() { db.Exec("DELETE FROM reference_templates WHERE slug = $1", slug) })

	tmpl := &models.ReferenceTemplate{
		Title: "Soldes d'été", Slug: slug, Domain: "commerce-test", ImageURL: "https://cdn.test/t.png",
		S3Key: "templates/t.png", Tags: []string{"promo", "été"}, Colors: []string{"#ff0000"}, IsActive: true,
	}
	if err := s.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if tmpl.ID == uuid.Nil || len(tmpl.Tags) != 2 {
		t.Fatalf("created = %+v", tmpl)
	}
	if exists, _ := s.TemplateSlugExists(ctx, slug); !exists {
		t.Error("slug should exist")
	}

	found, err := s.ListTemplates(ctx, models.TemplateFilter{Domain: "commerce-test", Query: "SOLDES", OnlyActive: true})
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("search found %d, want 1", len(found))
	}

	if ok, err := s.SetTemplateActive(ctx, tmpl.ID, false); err != nil || !ok {
		t.Fatalf("SetTemplateActive: %v %v", ok, err)
	}
	found, _ = s.ListTemplates(ctx, models.TemplateFilter{Domain: "commerce-test", OnlyActive: true})
	if len(found) != 0 {
		t.Error("inactive template listed")
	}

	deleted, err := s.DeleteTemplate(ctx, tmpl.ID)
	if err != nil || deleted == nil || deleted.S3Key != "templates/t.png" {
		t.Fatalf("DeleteTemplate = %+v, %v", deleted, err)
	}
}

func TestRolesAndPermissions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	userID := testProfile(t, db)
	s := New(db)

	roles, err := s.Roles(ctx, userID)
	if err != nil || len(roles) != 1 || roles[0] != models.RoleUser {
		t.Fatalf("default roles = %v, %v", roles, err)
	}
	if err := s.AddRole(ctx, userID, models.RoleAdmin); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	roles, _ = s.Roles(ctx, userID)
	perms, err := s.Permissions(ctx, roles)
	if err != nil {
		t.Fatalf("Permissions: %v", err)
	}
	if !perms[models.PermTemplatesManage] || !perms[models.PermCreditsGrant] {
		t.Errorf("admin permissions = %v", perms)
	}
	if removed, _ := s.RemoveRole(ctx, userID, models.RoleAdmin); !removed {
		t.Error("RemoveRole should report removal")
	}
}
