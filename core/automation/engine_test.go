package automation_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abinesh-lmsace/pulse/core"
	"github.com/abinesh-lmsace/pulse/core/automation"
	"github.com/abinesh-lmsace/pulse/core/condition"
	"github.com/abinesh-lmsace/pulse/core/credits"
	"github.com/abinesh-lmsace/pulse/core/reaction"
	inmemdb "github.com/abinesh-lmsace/pulse/storage/database/inmem"
)

const (
	courseID     = 10
	roleStudent  = 5
	roleTeacher  = 7
	roleManager  = 8
	roleParent   = 9
	activityID   = 77
	activityName = "Safety induction"
)

type captureDeliverer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
	fail map[string]error // recipient address -> injected failure
}

func (d *captureDeliverer) DeliverMessage(_ context.Context, msg *core.EmailMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[msg.To[0].Address]; err != nil {
		return err
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *captureDeliverer) messages() []*core.EmailMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*core.EmailMessage(nil), d.sent...)
}

func (d *captureDeliverer) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type engineFixture struct {
	conf         *core.Config
	membership   *inmemdb.MembershipRepository
	instances    automation.InstanceRepository
	availability automation.AvailabilityRepository
	ledger       automation.LedgerRepository
	gate         *automation.Gate
	resolver     *automation.Resolver
	dispatcher   *automation.Dispatcher
	deliverer    *captureDeliverer
	orchestrator *automation.Orchestrator
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()

	conf := core.NewTestConfig()
	db := inmemdb.NewDB()
	membership := inmemdb.NewMembershipRepository(db)
	deliverer := &captureDeliverer{fail: make(map[string]error)}

	fix := &engineFixture{
		conf:         conf,
		membership:   membership,
		instances:    inmemdb.NewInstanceRepository(db),
		availability: inmemdb.NewAvailabilityRepository(db),
		ledger:       inmemdb.NewLedgerRepository(db),
		deliverer:    deliverer,
	}

	registry := condition.DefaultRegistry(membership, membership, membership)
	fix.gate = automation.NewGate(fix.availability, registry)
	fix.resolver = automation.NewResolver(membership, fix.ledger, fix.gate, conf.TaskLimitUsers)
	fix.dispatcher = automation.NewDispatcher(deliverer, fix.ledger, nopLogger{}, conf.DeliveryTimeout)
	fix.dispatcher.SetBranding("", "", conf.SiteURL)
	reactionSvc := reaction.NewService(
		[]byte(conf.SecretKey), conf.ReactionExpiry, conf.SiteURL,
		inmemdb.NewReactionRepository(db), membership,
	)
	fix.dispatcher.SetReactionIssuer(reactionSvc)
	fix.orchestrator = automation.NewOrchestrator(fix.instances, fix.resolver, fix.dispatcher, fix.ledger, nopLogger{}, conf)
	fix.orchestrator.SetCreditAwarder(credits.NewService(inmemdb.NewCreditsRepository(db), membership))
	return fix
}

// addStudent enrols a user with the notify capability and marks them available.
func (fix *engineFixture) addStudent(t *testing.T, ctx context.Context, instID int, u automation.User) {
	t.Helper()
	fix.membership.AddUser(u)
	fix.membership.Enrol(courseID, u.ID, roleStudent)
	fix.membership.GrantCapability(roleStudent, inmemdb.CapNotify)
	if instID > 0 {
		_, err := fix.availability.MarkAvailable(ctx, instID, u.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)
	}
}

func (fix *engineFixture) createInstance(t *testing.T, ctx context.Context, defs ...automation.ReminderDefinition) automation.Instance {
	t.Helper()
	inst := automation.Instance{
		Name:            "Safety induction reminder",
		ActivityID:      activityID,
		ActivityName:    activityName,
		ActivityVisible: true,
		Course: automation.Course{
			ID:        courseID,
			FullName:  "Workplace Safety 101",
			ShortName: "WS101",
			Visible:   true,
			StartDate: time.Now().Add(-30 * 24 * time.Hour),
		},
		Enabled:   true,
		Reminders: make(map[automation.ReminderType]automation.ReminderDefinition),
	}
	for _, def := range defs {
		inst.Reminders[def.Type] = def
	}
	created, err := fix.instances.CreateInstance(ctx, inst)
	require.NoError(t, err)
	return created
}

func firstReminder(recipients ...int) automation.ReminderDefinition {
	return automation.ReminderDefinition{
		Type:       automation.TypeFirst,
		Enabled:    true,
		Recipients: recipients,
		Schedule:   automation.ScheduleRelative,
		Subject:    "Finish {Activity_name}",
		Content:    "<p>Hello {User_fullname}, please finish {Activity_name} in {Course_fullname}.</p>",
	}
}

func TestRunReminderPassIdempotent(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent))
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", LastName: "Learner", Email: "sam@example.com"})

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Instances)
	assert.Equal(t, 1, summary.Sent)
	assert.Zero(t, summary.Failed)

	msgs := fix.deliverer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sam@example.com", msgs[0].To[0].Address)
	assert.Equal(t, "Finish "+activityName, msgs[0].Subject)
	assert.Contains(t, msgs[0].HTMLContent, "Sam Learner")

	// A second pass must not redeliver a non-recurring reminder.
	fix.deliverer.reset()
	summary, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, summary.Skipped)
	assert.Empty(t, fix.deliverer.messages())
}

func TestRunReminderPassInvitationAndReset(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, automation.ReminderDefinition{
		Type:       automation.TypeInvitation,
		Enabled:    true,
		Recipients: []int{roleStudent},
		Content:    "<p>Welcome to {Course_fullname}.</p>",
	})
	// Enrolled but never condition-evaluated: invitations only need enrolment.
	fix.addStudent(t, ctx, 0, automation.User{ID: 1, FirstName: "Sam", LastName: "Learner", Email: "sam@example.com"})

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Sent)

	msgs := fix.deliverer.messages()
	require.Len(t, msgs, 1)
	// No subject configured: invitations fall back to the instance name.
	assert.Equal(t, inst.Name, msgs[0].Subject)

	summary, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)

	// The resend setting clears invitation history and the next pass re-sends.
	svc := automation.NewService(fix.instances, fix.availability, fix.ledger)
	require.NoError(t, svc.ResetInvitations(ctx, inst.ID))

	summary, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestRunReminderPassInvitationContentFallback(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, automation.ReminderDefinition{
		Type:       automation.TypeInvitation,
		Enabled:    true,
		Recipients: []int{roleStudent},
	})
	inst.Content = "<p>Everything you need is inside {Activity_name}.</p>"
	_, err := fix.instances.UpdateInstance(ctx, inst)
	require.NoError(t, err)
	fix.addStudent(t, ctx, 0, automation.User{ID: 1, FirstName: "Sam", LastName: "Learner", Email: "sam@example.com"})

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Sent)

	// A bare invitation falls back to the instance name and activity body.
	msgs := fix.deliverer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, inst.Name, msgs[0].Subject)
	assert.Contains(t, msgs[0].HTMLContent, "Everything you need is inside "+activityName)
}

func TestRunReminderPassInvitationWithoutContentWarns(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, automation.ReminderDefinition{
		Type:       automation.TypeInvitation,
		Enabled:    true,
		Recipients: []int{roleStudent},
	})
	fix.addStudent(t, ctx, 0, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	// No content on the definition or the instance: the operator gets a
	// warning instead of a permanent failure count.
	for pass := 0; pass < 2; pass++ {
		summary, err := fix.orchestrator.RunReminderPass(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Sent)
		assert.Zero(t, summary.Failed)
		require.Len(t, summary.Warnings, 1)
		assert.Contains(t, summary.Warnings[0], "misconfigured")
		assert.Empty(t, fix.deliverer.messages())
	}

	// Fixing the instance body unblocks delivery.
	inst.Content = "<p>Welcome.</p>"
	_, err := fix.instances.UpdateInstance(ctx, inst)
	require.NoError(t, err)
	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestRunReminderPassAwardsCreditsOnce(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent))
	inst.CreditScore = 2.5
	_, err := fix.instances.UpdateInstance(ctx, inst)
	require.NoError(t, err)

	student := automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"}
	fix.addStudent(t, ctx, inst.ID, student)

	_, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.5, fix.membership.Credits(student.ID))

	// Repeat passes never double-credit.
	_, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.5, fix.membership.Credits(student.ID))
}

func TestRunReminderPassEmbedsReactionLink(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	def := firstReminder(roleStudent)
	def.Content = "<p>Done already? {Reaction_url}</p>"
	inst := fix.createInstance(t, ctx, def)
	inst.ReactionType = "complete"
	_, err := fix.instances.UpdateInstance(ctx, inst)
	require.NoError(t, err)
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Sent)

	msgs := fix.deliverer.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTMLContent, fix.conf.SiteURL+"/reactions/")
	assert.NotContains(t, msgs[0].HTMLContent, "{Reaction_url}")

	fix.deliverer.reset()
	summary, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
}

// goneInstances drops one instance from point reads, as a concurrent delete
// between the page snapshot and per-instance processing would.
type goneInstances struct {
	automation.InstanceRepository
	goneID int
}

func (r goneInstances) GetInstance(ctx context.Context, id int) (automation.Instance, error) {
	if id == r.goneID {
		return automation.Instance{}, automation.ErrNotFound
	}
	return r.InstanceRepository.GetInstance(ctx, id)
}

func TestRunReminderPassWarnsWhenInstanceVanishes(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent))
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	orchestrator := automation.NewOrchestrator(
		goneInstances{InstanceRepository: fix.instances, goneID: inst.ID},
		fix.resolver, fix.dispatcher, fix.ledger, nopLogger{}, fix.conf,
	)
	summary, err := orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "vanished")
	assert.Empty(t, fix.deliverer.messages())
}

func TestRunReminderPassDelegates(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent, roleTeacher, roleParent))

	student := automation.User{ID: 1, FirstName: "Sam", LastName: "Learner", Email: "sam@example.com"}
	fix.addStudent(t, ctx, inst.ID, student)
	// The student also holds the teacher role; direct delivery wins and they
	// must not be double-notified as their own delegate.
	fix.membership.AssignCourseRole(roleTeacher, student.ID, courseID)

	teacher := automation.User{ID: 2, FirstName: "Tess", LastName: "Mentor", Email: "tess@example.com"}
	fix.membership.AddUser(teacher)
	fix.membership.AssignCourseRole(roleTeacher, teacher.ID, courseID)

	parent := automation.User{ID: 3, FirstName: "Pat", LastName: "Guardian", Email: "pat@example.com"}
	fix.membership.AddUser(parent)
	fix.membership.AssignUserRole(roleParent, parent.ID, student.ID)

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Sent)

	byAddress := make(map[string]*core.EmailMessage)
	for _, msg := range fix.deliverer.messages() {
		byAddress[msg.To[0].Address] = msg
	}
	require.Len(t, byAddress, 3)
	// Delegates read their student's name in the body, not their own.
	assert.Contains(t, byAddress["tess@example.com"].HTMLContent, "Sam Learner")
	assert.Contains(t, byAddress["pat@example.com"].HTMLContent, "Sam Learner")

	records, err := fix.ledger.Records(ctx, inst.ID)
	require.NoError(t, err)
	keys := make(map[automation.DeliveryKey]bool, len(records))
	for _, rec := range records {
		keys[rec.Key] = true
	}
	assert.True(t, keys[automation.DeliveryKey{InstanceID: inst.ID, UserID: student.ID, Type: automation.TypeFirst}])
	assert.True(t, keys[automation.DeliveryKey{InstanceID: inst.ID, UserID: teacher.ID, Type: automation.TypeFirst, ForUserID: student.ID}])
	assert.True(t, keys[automation.DeliveryKey{InstanceID: inst.ID, UserID: parent.ID, Type: automation.TypeFirst, ForUserID: student.ID}])

	// Everyone is caught up; nothing left to send.
	fix.deliverer.reset()
	summary, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
}

func TestRunReminderPassSeparateGroups(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent, roleTeacher, roleManager))
	inst.Course.GroupMode = automation.GroupsSeparate
	_, err := fix.instances.UpdateInstance(ctx, inst)
	require.NoError(t, err)

	s1 := automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"}
	s2 := automation.User{ID: 2, FirstName: "Sky", Email: "sky@example.com"}
	fix.addStudent(t, ctx, inst.ID, s1)
	fix.addStudent(t, ctx, inst.ID, s2)
	fix.membership.AddGroupMember(courseID, 100, s1.ID)
	fix.membership.AddGroupMember(courseID, 200, s2.ID)

	teacher := automation.User{ID: 3, FirstName: "Tess", Email: "tess@example.com"}
	fix.membership.AddUser(teacher)
	fix.membership.AssignCourseRole(roleTeacher, teacher.ID, courseID)
	fix.membership.AddGroupMember(courseID, 100, teacher.ID)

	manager := automation.User{ID: 4, FirstName: "Max", Email: "max@example.com"}
	fix.membership.AddUser(manager)
	fix.membership.AssignCourseRole(roleManager, manager.ID, courseID)
	fix.membership.GrantCapability(roleManager, inmemdb.CapAccessAllGroups)

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	// 2 direct + teacher about their group mate + manager about both.
	assert.Equal(t, 5, summary.Sent)

	about := make(map[string][]int)
	records, err := fix.ledger.Records(ctx, inst.ID)
	require.NoError(t, err)
	for _, rec := range records {
		if rec.Key.ForUserID != 0 {
			switch rec.Key.UserID {
			case teacher.ID:
				about["teacher"] = append(about["teacher"], rec.Key.ForUserID)
			case manager.ID:
				about["manager"] = append(about["manager"], rec.Key.ForUserID)
			}
		}
	}
	assert.ElementsMatch(t, []int{s1.ID}, about["teacher"])
	assert.ElementsMatch(t, []int{s1.ID, s2.ID}, about["manager"])
}

func TestRunReminderPassFailedDeliveryRetries(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent))
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})
	fix.deliverer.fail["sam@example.com"] = errors.New("smtp unavailable")

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Sent)

	// The failed claim was released, so no ledger row blocks the retry.
	records, err := fix.ledger.Records(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	delete(fix.deliverer.fail, "sam@example.com")
	summary, err = fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Zero(t, summary.Failed)
}

func TestRunReminderPassSweepsAbandonedClaims(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent))
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	// A claim left behind by a crashed worker, older than the claim grace.
	key := automation.DeliveryKey{InstanceID: inst.ID, UserID: 1, Type: automation.TypeFirst}
	claimed, err := fix.ledger.TryClaim(ctx, key, "dead-worker", time.Now().Add(-2*fix.conf.ClaimGrace))
	require.NoError(t, err)
	require.True(t, claimed)

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestRunReminderPassSkipsInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	def := firstReminder(roleStudent)
	def.Subject = ""
	inst := fix.createInstance(t, ctx, def)
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "skipping first reminder")
}

func TestRunReminderPassHonorsFixedDate(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	def := firstReminder(roleStudent)
	def.Schedule = automation.ScheduleFixed
	def.FixedDate = time.Now().Add(24 * time.Hour)
	inst := fix.createInstance(t, ctx, def)
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	summary, err := fix.orchestrator.RunReminderPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, summary.Warnings)
}

func TestTryClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)
	key := automation.DeliveryKey{InstanceID: 1, UserID: 1, Type: automation.TypeFirst}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := fix.ledger.TryClaim(ctx, key, strconv.Itoa(i), time.Now())
			errs[i] = err
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, wins)
}
