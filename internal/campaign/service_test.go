package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/velora/crm-server/internal/domain"
)

func campaignRow(id string, status domain.CampaignStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "subject", "from_name", "from_email", "body_html",
		"segment_id", "template_id", "status", "scheduled_at", "frequency_cap",
		"total_recipients", "sent_count", "failed_count", "sent_at", "created_at", "updated_at",
	}).AddRow(id, "Feed: Sérum", "Sérum", "", "", "<p>corpo</p>",
		nil, nil, status, nil, nil, 0, 0, 0, nil, now, now)
}

func TestUpdateRewritesDraft(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM crm_campaigns WHERE id").
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", domain.CampaignDraft))
	mock.ExpectExec("UPDATE crm_campaigns SET name").
		WithArgs("Lançamento sérum", "Chegou o novo sérum", "Velora", "contato@velora.com.br",
			"<p>corpo</p>", nil, nil, nil, nil, "draft",
			"camp-1", "draft", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewService(NewStore(db), nil, nil, nil)
	c, err := svc.Update(context.Background(), "camp-1", CreateInput{
		Name:      "Lançamento sérum",
		Subject:   "Chegou o novo sérum",
		FromName:  "Velora",
		FromEmail: "contato@velora.com.br",
		BodyHTML:  "<p>corpo</p>",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.FromEmail != "contato@velora.com.br" {
		t.Errorf("from_email = %q, not applied", c.FromEmail)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateRejectsSendingCampaign(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM crm_campaigns WHERE id").
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", domain.CampaignSending))

	svc := NewService(NewStore(db), nil, nil, nil)
	_, err = svc.Update(context.Background(), "camp-1", CreateInput{
		Name: "x", Subject: "y", FromEmail: "contato@velora.com.br",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition for a sending campaign", err)
	}
}

func TestUpdateRequiresSender(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM crm_campaigns WHERE id").
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", domain.CampaignDraft))

	svc := NewService(NewStore(db), nil, nil, nil)
	if _, err := svc.Update(context.Background(), "camp-1", CreateInput{Name: "x", Subject: "y"}); err == nil {
		t.Error("expected validation error for missing from_email")
	}
}
