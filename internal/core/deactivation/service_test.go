package deactivation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type fakeStore struct {
	rows        []*relationship.Relationship
	findErr     error
	closeErr    error
	closeCalls  int
	alwaysStale bool
}

func (f *fakeStore) FindActive(_ context.Context, orgID, employeeID string) (*relationship.Relationship, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, row := range f.rows {
		if row.EmployerOrgID == orgID && row.EmployeeID == employeeID && row.ValidTo == nil {
			clone := *row
			return &clone, nil
		}
	}
	return nil, relationship.ErrRelationshipNotFound
}

func (f *fakeStore) FindActiveForLeader(_ context.Context, leaderID string) ([]*relationship.Relationship, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*relationship.Relationship
	for _, row := range f.rows {
		if row.LeaderID == leaderID && row.ValidTo == nil {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) Close(_ context.Context, rel *relationship.Relationship, closedAt time.Time) (bool, error) {
	f.closeCalls++
	if f.closeErr != nil {
		return false, f.closeErr
	}
	if f.alwaysStale {
		return false, nil
	}
	for _, row := range f.rows {
		if row.ID == rel.ID && row.ValidTo == nil {
			t := closedAt
			row.ValidTo = &t
			return true, nil
		}
	}
	return false, nil
}

type fakeGate struct {
	employments []Employment
	err         error
	calls       int
	lastToken   string
	lastByEmp   bool
}

func (f *fakeGate) GetEmployments(_ context.Context, _ string, authToken string, employeeInitiated bool) ([]Employment, error) {
	f.calls++
	f.lastToken = authToken
	f.lastByEmp = employeeInitiated
	return f.employments, f.err
}

type fakeNames struct {
	names map[string]string
	err   error
	calls int
}

func (f *fakeNames) ResolveNames(_ context.Context, ids []string, _ string) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string)
	for _, id := range ids {
		if n, ok := f.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type recordingChannel struct {
	published     []Notification
	failOnRequest error
	failOnNotice  error
}

func (r *recordingChannel) Publish(_ context.Context, msg Notification) error {
	switch msg.(type) {
	case *NewLeaderRequest:
		if r.failOnRequest != nil {
			return r.failOnRequest
		}
	case *TerminationNotice:
		if r.failOnNotice != nil {
			return r.failOnNotice
		}
	}
	r.published = append(r.published, msg)
	return nil
}

const (
	orgID      = "123456789"
	employeeID = "12345678910"
	leaderID   = "01987654321"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newActiveStore() *fakeStore {
	return &fakeStore{rows: []*relationship.Relationship{
		{ID: "rel-1", EmployerOrgID: orgID, EmployeeID: employeeID, LeaderID: leaderID, AdvancesPay: relationship.AdvancePayYes, ValidFrom: testNow.AddDate(-1, 0, 0)},
	}}
}

func newTestService(store *fakeStore, gate *fakeGate, names *fakeNames, channel *recordingChannel) *Service {
	return NewService(store, gate, names, channel, &stubClock{now: testNow}, nil)
}

func TestService_Deactivate_ActiveEmploymentRequestsReplacement(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	gate := &fakeGate{employments: []Employment{{OrgID: "other", Active: true}, {OrgID: orgID, Active: true}}}
	names := &fakeNames{names: map[string]string{employeeID: "Ola Nordmann"}}
	channel := &recordingChannel{}
	svc := newTestService(store, gate, names, channel)
	callID := uuid.New()

	result, err := svc.Deactivate(context.Background(), DeactivateInput{
		EmployerOrgID:       orgID,
		EmployeeID:          employeeID,
		AuthToken:           "token",
		CorrelationID:       callID,
		TriggeredByEmployee: true,
	})
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}

	wantStates := []State{StateReceived, StateCheckingEmployment, StateRequestingReplacement, StateNotifying, StateDone}
	if !reflect.DeepEqual(result.Transitions, wantStates) {
		t.Fatalf("unexpected transitions: %v", result.Transitions)
	}
	if !result.ReplacementRequested || !result.Closed || result.NoOp {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !gate.lastByEmp || gate.lastToken != "token" {
		t.Fatalf("gate called with wrong arguments: byEmployee=%t token=%q", gate.lastByEmp, gate.lastToken)
	}

	if len(channel.published) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(channel.published))
	}
	req, ok := channel.published[0].(*NewLeaderRequest)
	if !ok {
		t.Fatalf("expected NewLeaderRequest first, got %T", channel.published[0])
	}
	if req.RequestID != callID || req.DisplayName != "Ola Nordmann" || req.Source != SourceEmployee || req.EmployerOrgID != orgID {
		t.Fatalf("unexpected request: %+v", req)
	}
	notice, ok := channel.published[1].(*TerminationNotice)
	if !ok {
		t.Fatalf("expected TerminationNotice second, got %T", channel.published[1])
	}
	if !notice.ActiveUntil.Equal(testNow) || notice.Source != SourceEmployee || notice.EmployeeID != employeeID {
		t.Fatalf("unexpected notice: %+v", notice)
	}

	if store.rows[0].ValidTo == nil || !store.rows[0].ValidTo.Equal(testNow) {
		t.Fatalf("expected relationship to be closed at %v", testNow)
	}
}

func TestService_Deactivate_InactiveEmploymentOnlyNotifiesTermination(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	gate := &fakeGate{employments: []Employment{{OrgID: orgID, Active: false}, {OrgID: "other", Active: true}}}
	names := &fakeNames{}
	channel := &recordingChannel{}
	svc := newTestService(store, gate, names, channel)

	result, err := svc.Deactivate(context.Background(), DeactivateInput{EmployerOrgID: orgID, EmployeeID: employeeID, CorrelationID: uuid.New()})
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}

	wantStates := []State{StateReceived, StateCheckingEmployment, StateSkipping, StateNotifying, StateDone}
	if !reflect.DeepEqual(result.Transitions, wantStates) {
		t.Fatalf("unexpected transitions: %v", result.Transitions)
	}
	if names.calls != 0 {
		t.Fatalf("name resolver must not be called when employment is inactive")
	}
	if len(channel.published) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(channel.published))
	}
	notice, ok := channel.published[0].(*TerminationNotice)
	if !ok {
		t.Fatalf("expected TerminationNotice, got %T", channel.published[0])
	}
	if notice.Source != SourceManager {
		t.Fatalf("expected manager source, got %s", notice.Source)
	}
	if !result.Closed {
		t.Fatalf("expected relationship to be closed")
	}
}

func TestService_Deactivate_MissingNameIsFatal(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	gate := &fakeGate{employments: []Employment{{OrgID: orgID, Active: true}}}
	channel := &recordingChannel{}
	svc := newTestService(store, gate, &fakeNames{names: map[string]string{}}, channel)

	_, err := svc.Deactivate(context.Background(), DeactivateInput{EmployerOrgID: orgID, EmployeeID: employeeID, CorrelationID: uuid.New()})
	if !errors.Is(err, ErrIdentityInconsistent) {
		t.Fatalf("expected ErrIdentityInconsistent, got %v", err)
	}
	if len(channel.published) != 0 {
		t.Fatalf("expected no messages, got %d", len(channel.published))
	}
	if store.closeCalls != 0 || store.rows[0].ValidTo != nil {
		t.Fatalf("relationship must stay active")
	}
}

func TestService_Deactivate_Idempotent(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	gate := &fakeGate{}
	channel := &recordingChannel{}
	svc := newTestService(store, gate, &fakeNames{}, channel)
	in := DeactivateInput{EmployerOrgID: orgID, EmployeeID: employeeID, CorrelationID: uuid.New()}

	first, err := svc.Deactivate(context.Background(), in)
	if err != nil {
		t.Fatalf("first Deactivate returned error: %v", err)
	}
	second, err := svc.Deactivate(context.Background(), in)
	if err != nil {
		t.Fatalf("second Deactivate returned error: %v", err)
	}

	if !first.Closed || first.NoOp {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if !second.NoOp || second.FinalState != StateDone {
		t.Fatalf("expected second call to be a no-op, got %+v", second)
	}
	if store.closeCalls != 1 {
		t.Fatalf("expected exactly one store mutation, got %d", store.closeCalls)
	}
	if gate.calls != 1 || len(channel.published) != 1 {
		t.Fatalf("second call must not reach collaborators: gate=%d messages=%d", gate.calls, len(channel.published))
	}
}

func TestService_Deactivate_CollaboratorErrorsPropagate(t *testing.T) {
	t.Parallel()

	gateErr := errors.New("aareg unavailable")
	publishErr := errors.New("broker unavailable")
	closeErr := errors.New("db unavailable")

	cases := []struct {
		name    string
		store   *fakeStore
		gate    *fakeGate
		channel *recordingChannel
		want    error
	}{
		{name: "gate", store: newActiveStore(), gate: &fakeGate{err: gateErr}, channel: &recordingChannel{}, want: gateErr},
		{name: "request publish", store: newActiveStore(), gate: &fakeGate{employments: []Employment{{OrgID: orgID, Active: true}}}, channel: &recordingChannel{failOnRequest: publishErr}, want: publishErr},
		{name: "notice publish", store: newActiveStore(), gate: &fakeGate{}, channel: &recordingChannel{failOnNotice: publishErr}, want: publishErr},
		{name: "close", store: &fakeStore{rows: newActiveStore().rows, closeErr: closeErr}, gate: &fakeGate{}, channel: &recordingChannel{}, want: closeErr},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(tc.store, tc.gate, &fakeNames{names: map[string]string{employeeID: "Ola Nordmann"}}, tc.channel)
			_, err := svc.Deactivate(context.Background(), DeactivateInput{EmployerOrgID: orgID, EmployeeID: employeeID, CorrelationID: uuid.New()})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.store.rows[0].ValidTo != nil {
				t.Fatalf("relationship must not be closed after a failure")
			}
		})
	}
}

func TestService_Deactivate_ConcurrentCloseIsNotAnError(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	store.alwaysStale = true
	channel := &recordingChannel{}
	svc := newTestService(store, &fakeGate{}, &fakeNames{}, channel)

	result, err := svc.Deactivate(context.Background(), DeactivateInput{EmployerOrgID: orgID, EmployeeID: employeeID, CorrelationID: uuid.New()})
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if result.Closed {
		t.Fatalf("expected Closed=false when another trigger closed the row first")
	}
	if result.FinalState != StateDone {
		t.Fatalf("expected DONE, got %s", result.FinalState)
	}
}

func TestService_DeactivateForEmployee(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	gate := &fakeGate{employments: []Employment{{OrgID: orgID, Active: true}}}
	names := &fakeNames{names: map[string]string{employeeID: "Kari Nordmann"}}
	channel := &recordingChannel{}
	svc := newTestService(store, gate, names, channel)

	result, err := svc.DeactivateForEmployee(context.Background(), DeactivateForEmployeeInput{
		LeaderID:      leaderID,
		EmployerOrgID: orgID,
		EmployeeID:    employeeID,
		AuthToken:     "leader-token",
		CorrelationID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("DeactivateForEmployee returned error: %v", err)
	}
	if result.Source != SourceManager || !result.ReplacementRequested || !result.Closed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gate.lastByEmp {
		t.Fatalf("leader initiated deactivation must not use the employee visibility rule")
	}
	req := channel.published[0].(*NewLeaderRequest)
	if req.Source != SourceManager {
		t.Fatalf("expected manager source, got %s", req.Source)
	}
}

func TestService_DeactivateForEmployee_NoMatchIsNoOp(t *testing.T) {
	t.Parallel()

	store := newActiveStore()
	gate := &fakeGate{}
	channel := &recordingChannel{}
	svc := newTestService(store, gate, &fakeNames{}, channel)

	for _, in := range []DeactivateForEmployeeInput{
		{LeaderID: "someone-else", EmployerOrgID: orgID, EmployeeID: employeeID},
		{LeaderID: leaderID, EmployerOrgID: "other-org", EmployeeID: employeeID},
		{LeaderID: leaderID, EmployerOrgID: orgID, EmployeeID: "other-employee"},
	} {
		result, err := svc.DeactivateForEmployee(context.Background(), in)
		if err != nil {
			t.Fatalf("DeactivateForEmployee returned error: %v", err)
		}
		if !result.NoOp {
			t.Fatalf("expected no-op for %+v", in)
		}
	}
	if gate.calls != 0 || len(channel.published) != 0 || store.closeCalls != 0 {
		t.Fatalf("no-op triggers must not reach collaborators")
	}
}

func TestService_InvalidInput(t *testing.T) {
	t.Parallel()

	svc := newTestService(newActiveStore(), &fakeGate{}, &fakeNames{}, &recordingChannel{})

	if _, err := svc.Deactivate(context.Background(), DeactivateInput{EmployeeID: employeeID}); !errors.Is(err, ErrInvalidOrgID) {
		t.Fatalf("expected ErrInvalidOrgID, got %v", err)
	}
	if _, err := svc.Deactivate(context.Background(), DeactivateInput{EmployerOrgID: orgID}); !errors.Is(err, ErrInvalidEmployeeID) {
		t.Fatalf("expected ErrInvalidEmployeeID, got %v", err)
	}
	if _, err := svc.DeactivateForEmployee(context.Background(), DeactivateForEmployeeInput{EmployerOrgID: orgID, EmployeeID: employeeID}); !errors.Is(err, ErrInvalidLeaderID) {
		t.Fatalf("expected ErrInvalidLeaderID, got %v", err)
	}
}
