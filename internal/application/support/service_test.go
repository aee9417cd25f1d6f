package support

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDesk struct {
	id  string
	err error
	got []DeskTicket
}

func (f *fakeDesk) CreateTicket(ctx context.Context, t DeskTicket) (string, error) {
	f.got = append(f.got, t)
	return f.id, f.err
}

type fakeNotifier struct{ msgs []notifications.Message }

func (f *fakeNotifier) Notify(id uuid.UUID, msg notifications.Message) { f.msgs = append(f.msgs, msg) }

type fixture struct {
	svc      *Service
	db       *gorm.DB
	desk     *fakeDesk
	notifier *fakeNotifier
}

func setup(t *testing.T) fixture {
	db := testutil.NewDB(t)
	f := fixture{db: db, desk: &fakeDesk{id: "9001"}, notifier: &fakeNotifier{}}
	f.svc = &Service{DB: db, Desk: f.desk, Notifier: f.notifier, Async: async.Inline}
	return f
}

func principal(u domain.User) access.Principal {
	return access.Principal{UserID: u.UserID, Role: u.Role}
}

func openTicket(t *testing.T, f fixture, u domain.User) *domain.SupportTicket {
	t.Helper()
	tk, err := f.svc.Create(context.Background(), principal(u), CreateInput{
		Subject: "  Deposit missing ", Description: "Sent 100 USD yesterday", Category: "deposit",
	})
	require.NoError(t, err)
	return tk
}

func TestCreate_OpensAndSyncs(t *testing.T) {
	f := setup(t)
	u := testutil.CreateUser(t, f.db, constants.Individual, nil)

	tk := openTicket(t, f, u)
	assert.Equal(t, domain.TicketOpen, tk.Status)
	assert.Equal(t, domain.PriorityNormal, tk.Priority)
	assert.Equal(t, "Deposit missing", tk.Subject)
	assert.Equal(t, int64(1), testutil.CountAudit(t, f.db, tk.TicketID))

	require.Len(t, f.desk.got, 1)
	assert.Equal(t, tk.TicketID.String(), f.desk.got[0].LocalID)
	assert.Equal(t, u.Email, f.desk.got[0].RequesterEmail)
	assert.Contains(t, f.desk.got[0].Tags, "deposit")

	var stored domain.SupportTicket
	require.NoError(t, f.db.First(&stored, "ticket_id = ?", tk.TicketID).Error)
	require.NotNil(t, stored.ExternalID)
	assert.Equal(t, "9001", *stored.ExternalID)
}

func TestCreate_DeskFailureKeepsTicket(t *testing.T) {
	f := setup(t)
	f.desk.err = errors.New("desk down")
	u := testutil.CreateUser(t, f.db, constants.Individual, nil)

	tk := openTicket(t, f, u)
	var stored domain.SupportTicket
	require.NoError(t, f.db.First(&stored, "ticket_id = ?", tk.TicketID).Error)
	assert.Nil(t, stored.ExternalID)
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t)
	u := testutil.CreateUser(t, f.db, constants.Individual, nil)

	_, err := f.svc.Create(context.Background(), principal(u), CreateInput{Subject: " ", Description: "x"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.Create(context.Background(), principal(u), CreateInput{Subject: "a", Description: "b", Priority: "asap"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.Create(context.Background(), access.Principal{}, CreateInput{Subject: "a", Description: "b"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestGetAndList_Scope(t *testing.T) {
	f := setup(t)
	owner := testutil.CreateUser(t, f.db, constants.Individual, nil)
	other := testutil.CreateUser(t, f.db, constants.Individual, nil)
	agent := testutil.CreateUser(t, f.db, constants.Support, nil)
	tk := openTicket(t, f, owner)
	openTicket(t, f, other)

	_, err := f.svc.Get(context.Background(), principal(owner), tk.TicketID)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), principal(other), tk.TicketID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = f.svc.Get(context.Background(), principal(agent), tk.TicketID)
	require.NoError(t, err)

	mine, total, err := f.svc.List(context.Background(), principal(owner), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, mine, 1)
	assert.Equal(t, tk.TicketID, mine[0].TicketID)

	_, total, err = f.svc.List(context.Background(), principal(agent), ListFilter{Status: domain.TicketOpen})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, _, err = f.svc.List(context.Background(), principal(agent), ListFilter{Status: "lost"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateStatus(t *testing.T) {
	f := setup(t)
	owner := testutil.CreateUser(t, f.db, constants.Individual, nil)
	agent := testutil.CreateUser(t, f.db, constants.Support, nil)
	tk := openTicket(t, f, owner)

	_, err := f.svc.UpdateStatus(context.Background(), principal(owner), tk.TicketID, domain.TicketClosed)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	out, err := f.svc.UpdateStatus(context.Background(), principal(agent), tk.TicketID, domain.TicketSolved)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketSolved, out.Status)
	assert.Equal(t, int64(2), testutil.CountAudit(t, f.db, tk.TicketID))
	require.Len(t, f.notifier.msgs, 1)
	assert.Equal(t, domain.TicketSolved, f.notifier.msgs[0].Data["status"])

	// Same status is a no-op.
	_, err = f.svc.UpdateStatus(context.Background(), principal(agent), tk.TicketID, domain.TicketSolved)
	require.NoError(t, err)
	assert.Equal(t, int64(2), testutil.CountAudit(t, f.db, tk.TicketID))

	_, err = f.svc.UpdateStatus(context.Background(), principal(agent), tk.TicketID, "archived")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.UpdateStatus(context.Background(), principal(agent), uuid.New(), domain.TicketOpen)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApplyDeskUpdate(t *testing.T) {
	f := setup(t)
	owner := testutil.CreateUser(t, f.db, constants.Individual, nil)
	tk := openTicket(t, f, owner)

	out, err := f.svc.ApplyDeskUpdate(context.Background(), DeskUpdate{ExternalID: "9001", Status: "hold"})
	require.NoError(t, err)
	assert.Equal(t, tk.TicketID, out.TicketID)
	assert.Equal(t, domain.TicketPending, out.Status)

	var log domain.AuditLog
	require.NoError(t, f.db.Where("target_id = ? AND action = ?", tk.TicketID, "support_ticket.status_change").First(&log).Error)
	assert.Equal(t, "system", log.ActorRole)

	_, err = f.svc.ApplyDeskUpdate(context.Background(), DeskUpdate{ExternalID: "404", Status: "solved"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.svc.ApplyDeskUpdate(context.Background(), DeskUpdate{ExternalID: "9001", Status: "deleted"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMapDeskStatus(t *testing.T) {
	cases := map[string]string{
		"new":     domain.TicketOpen,
		"OPEN":    domain.TicketOpen,
		"pending": domain.TicketPending,
		"on-hold": domain.TicketPending,
		"solved":  domain.TicketSolved,
		"closed":  domain.TicketClosed,
		"spam":    "spam",
	}
	for in, want := range cases {
		assert.Equal(t, want, mapDeskStatus(in), in)
	}
}

func TestDeskClient_CreateTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/tickets.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ops@example.com/token", user)
		assert.Equal(t, "tok", pass)
		var in deskRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "local-1", in.Ticket.ExternalID)
		assert.Equal(t, "a@b.com", in.Ticket.Requester.Email)
		_, _ = w.Write([]byte(`{"ticket":{"id":77}}`))
	}))
	defer srv.Close()

	c := &DeskClient{BaseURL: srv.URL + "/", Email: "ops@example.com", Token: "tok"}
	id, err := c.CreateTicket(context.Background(), DeskTicket{LocalID: "local-1", Subject: "s", RequesterEmail: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "77", id)
}

func TestDeskClient_Errors(t *testing.T) {
	_, err := (&DeskClient{}).CreateTicket(context.Background(), DeskTicket{})
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err = (&DeskClient{BaseURL: srv.URL, Token: "tok"}).CreateTicket(context.Background(), DeskTicket{})
	assert.ErrorContains(t, err, "401")
}
