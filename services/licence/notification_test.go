package licence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"licensing-controlplane/pkg/taskname"
	"licensing-controlplane/services/records"

	"github.com/hibiken/asynq"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/datatypes"
)

func createOutbox(t *testing.T, env *testEnv, id string) *NotificationOutbox {
	t.Helper()
	ob := &NotificationOutbox{
		ID:        id,
		LicenceID: "lic_1",
		Recipient: testApplicant,
		Event:     EventLicenceIssued,
		Payload:   datatypes.JSONMap{"licence_no": "LIC-2026-0001"},
		Status:    OutboxPending,
	}
	require.NoError(t, env.db.Create(ob).Error)
	return ob
}

func outboxStatus(t *testing.T, env *testEnv, id string) NotificationOutbox {
	t.Helper()
	var ob NotificationOutbox
	require.NoError(t, env.db.First(&ob, "id = ?", id).Error)
	return ob
}

func TestDispatchEnqueuesNotifyTask(t *testing.T) {
	env := newTestEnv(t)
	ob := createOutbox(t, env, "ob_1")

	env.enqueuer.EXPECT().
		Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
			require.Equal(t, taskname.LicenceNotify, task.Type())
			var p NotifyPayload
			require.NoError(t, json.Unmarshal(task.Payload(), &p))
			require.Equal(t, "ob_1", p.OutboxID)
			require.Len(t, opts, 3)
			return &asynq.TaskInfo{ID: "ob_1"}, nil
		})

	require.NoError(t, env.dispatcher.Dispatch(context.Background(), ob))
	require.Equal(t, OutboxDispatched, ob.Status)
	require.Equal(t, OutboxDispatched, outboxStatus(t, env, "ob_1").Status)
}

func TestDispatchTreatsDuplicateTaskAsDispatched(t *testing.T) {
	env := newTestEnv(t)
	ob := createOutbox(t, env, "ob_1")

	env.enqueuer.EXPECT().
		Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("failed to enqueue task: %w", asynq.ErrTaskIDConflict))

	require.NoError(t, env.dispatcher.Dispatch(context.Background(), ob))
	require.Equal(t, OutboxDispatched, outboxStatus(t, env, "ob_1").Status)
}

func TestDispatchFailureKeepsRowPending(t *testing.T) {
	env := newTestEnv(t)
	ob := createOutbox(t, env, "ob_1")

	env.enqueuer.EXPECT().
		Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("redis unavailable"))

	require.Error(t, env.dispatcher.Dispatch(context.Background(), ob))
	got := outboxStatus(t, env, "ob_1")
	require.Equal(t, OutboxPending, got.Status)
	require.Equal(t, 1, got.Attempts)
}

type stubNotifier struct {
	err   error
	calls []string
}

func (s *stubNotifier) Notify(_ context.Context, recipient, event string, _ map[string]any) error {
	s.calls = append(s.calls, recipient+":"+event)
	return s.err
}

func notifyTask(t *testing.T, outboxID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(NotifyPayload{OutboxID: outboxID})
	require.NoError(t, err)
	return asynq.NewTask(taskname.LicenceNotify, payload)
}

func TestNotifyHandlerDelivers(t *testing.T) {
	env := newTestEnv(t)
	createOutbox(t, env, "ob_1")
	notifier := records.NewNotificationService(env.db, env.node)
	h := NewNotifyHandler(env.repo, notifier)

	require.NoError(t, h.ProcessTask(context.Background(), notifyTask(t, "ob_1")))
	require.Equal(t, OutboxDelivered, outboxStatus(t, env, "ob_1").Status)

	var rows []records.Notification
	require.NoError(t, env.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, testApplicant, rows[0].Recipient)

	// redelivery of a delivered row is a no-op
	require.NoError(t, h.ProcessTask(context.Background(), notifyTask(t, "ob_1")))
	require.NoError(t, env.db.Find(&rows).Error)
	require.Len(t, rows, 1)
}

func TestNotifyHandlerFailureIsRetried(t *testing.T) {
	env := newTestEnv(t)
	createOutbox(t, env, "ob_1")
	notifier := &stubNotifier{err: errors.New("mailbox full")}
	h := NewNotifyHandler(env.repo, notifier)

	err := h.ProcessTask(context.Background(), notifyTask(t, "ob_1"))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	got := outboxStatus(t, env, "ob_1")
	require.Equal(t, 1, got.Attempts)
	require.Equal(t, "mailbox full", got.LastError)
	require.NotEqual(t, OutboxDelivered, got.Status)
}

func TestNotifyHandlerSkipsBadTasks(t *testing.T) {
	env := newTestEnv(t)
	h := NewNotifyHandler(env.repo, &stubNotifier{})

	err := h.ProcessTask(context.Background(), asynq.NewTask(taskname.LicenceNotify, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), notifyTask(t, "missing"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRelayRedispatchesAndSweeps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	createOutbox(t, env, "ob_old")
	require.NoError(t, env.db.Model(&NotificationOutbox{}).Where("id = ?", "ob_old").Update("created_at", old).Error)
	createOutbox(t, env, "ob_new")

	require.NoError(t, env.repo.Reserve(ctx, &Licence{ID: "stale", CouncilID: "C1", RequestID: "R1", LicenceNo: "LIC-2026-0500"}))
	require.NoError(t, env.db.Model(&Licence{}).Where("id = ?", "stale").Update("created_at", old).Error)
	_, err := env.artifacts.Put(ctx, "LIC-2026-0500", []byte("%PDF"), ContentTypePDF)
	require.NoError(t, err)

	require.NoError(t, env.repo.Reserve(ctx, &Licence{ID: "fresh", CouncilID: "C1", RequestID: "R2", LicenceNo: "LIC-2026-0501"}))
	require.NoError(t, env.db.Create(&Licence{ID: "active", CouncilID: "C1", RequestID: "R3", LicenceNo: "LIC-2026-0502", Status: StatusActive, CreatedAt: old}).Error)

	env.enqueuer.EXPECT().
		Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&asynq.TaskInfo{}, nil).
		Times(1)

	relay := NewRelay(env.repo, env.dispatcher, env.artifacts, time.Minute, 15*time.Minute)
	relay.RunOnce(ctx)

	require.Equal(t, OutboxDispatched, outboxStatus(t, env, "ob_old").Status)
	require.Equal(t, OutboxPending, outboxStatus(t, env, "ob_new").Status)

	var ids []string
	require.NoError(t, env.db.Model(&Licence{}).Order("id").Pluck("id", &ids).Error)
	require.Equal(t, []string{"active", "fresh"}, ids)

	exists, err := afero.Exists(env.fs, "licences/LIC-2026-0500.pdf")
	require.NoError(t, err)
	require.False(t, exists)
}
