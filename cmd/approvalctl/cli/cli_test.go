package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/jobs"
)

type stubStore struct {
	levels   []approval.LevelConfig
	replaced []approval.LevelInput
	actor    int64
	docType  approval.DocumentType
}

func (s *stubStore) GetConfig(_ context.Context, _ int64, docType approval.DocumentType) ([]approval.LevelConfig, error) {
	s.docType = docType
	return s.levels, nil
}

func (s *stubStore) ReplaceConfig(_ context.Context, tenantID int64, docType approval.DocumentType, inputs []approval.LevelInput, actorID int64) ([]approval.LevelConfig, error) {
	s.replaced = inputs
	s.actor = actorID
	s.docType = docType
	return approval.NormalizeLevels(tenantID, docType, inputs)
}

func TestParseLevelsFile(t *testing.T) {
	levels, err := ParseLevelsFile(strings.NewReader("levels:\n  - role_ids: [10]\n  - role_ids: [20, 21]\n"))
	require.NoError(t, err)
	require.Equal(t, []approval.LevelInput{{RoleIDs: []int64{10}}, {RoleIDs: []int64{20, 21}}}, levels)

	levels, err = ParseLevelsFile(strings.NewReader("levels: []\n"))
	require.NoError(t, err)
	require.Empty(t, levels)

	_, err = ParseLevelsFile(strings.NewReader("other: 1\n"))
	require.Error(t, err)

	_, err = ParseLevelsFile(strings.NewReader("{}\n"))
	require.Error(t, err)

	_, err = ParseLevelsFile(strings.NewReader(""))
	require.Error(t, err)
}

func TestConfigReplacePrintsNormalizedLevels(t *testing.T) {
	store := &stubStore{}
	c, err := NewConfigCLI(store)
	require.NoError(t, err)

	var out bytes.Buffer
	err = c.Replace(context.Background(), 1, 42, "sales_invoice", strings.NewReader("levels:\n  - level_index: 5\n    role_ids: [30, 10]\n"), true, &out)
	require.NoError(t, err)
	require.Equal(t, approval.DocumentTypeSalesInvoice, store.docType)
	require.Equal(t, int64(42), store.actor)

	var body struct {
		Levels []approval.LevelConfig `json:"levels"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	require.Len(t, body.Levels, 1)
	require.Equal(t, 1, body.Levels[0].LevelIndex)
	require.Equal(t, []int64{10, 30}, body.Levels[0].RoleIDs)
}

func TestConfigGetTable(t *testing.T) {
	store := &stubStore{levels: []approval.LevelConfig{
		{LevelIndex: 1, RoleIDs: []int64{10}},
		{LevelIndex: 2, RoleIDs: []int64{20, 21}},
	}}
	c, err := NewConfigCLI(store)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, c.Get(context.Background(), 1, "SALES_ORDER", false, &out))
	require.Contains(t, out.String(), "LEVEL")
	require.Contains(t, out.String(), "20,21")

	store.levels = nil
	out.Reset()
	require.NoError(t, c.Get(context.Background(), 1, "SALES_ORDER", false, &out))
	require.Contains(t, out.String(), "no approval levels")
}

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsTrigger(t *testing.T) {
	enq := &stubEnqueuer{}
	c := NewJobsCLIWith(enq, nil)

	info, err := c.Trigger(context.Background(), JobNamePendingSnapshot)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskPendingSnapshot, info.Type)

	info, err = c.Trigger(context.Background(), JobNameIdempotencyPurge)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyPurge, info.Type)

	_, err = c.Trigger(context.Background(), "gl-integrity")
	require.Error(t, err)
	require.Len(t, enq.tasks, 2)
	require.NoError(t, c.Close())
}

func TestJobsInspectQueue(t *testing.T) {
	c := NewJobsCLIWith(nil, stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}})
	stats, err := c.InspectQueue()
	require.NoError(t, err)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.Retry)

	c = NewJobsCLIWith(nil, stubInspector{err: errors.New("redis down")})
	_, err = c.InspectQueue()
	require.Error(t, err)

	_, err = NewJobsCLIWith(nil, nil).InspectQueue()
	require.Error(t, err)
}
