package export

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"activity-export/internal/common/errors"
	"activity-export/internal/common/logger"
	"activity-export/internal/common/marketo"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetPagingToken(ctx context.Context, sinceDate string) (*marketo.PagingTokenResponse, error) {
	args := m.Called(ctx, sinceDate)
	resp, _ := args.Get(0).(*marketo.PagingTokenResponse)
	return resp, args.Error(1)
}

func (m *mockSource) GetActivities(ctx context.Context, nextPageToken, activityTypeIDs string) (*marketo.ActivityPage, error) {
	args := m.Called(ctx, nextPageToken, activityTypeIDs)
	page, _ := args.Get(0).(*marketo.ActivityPage)
	return page, args.Error(1)
}

func (m *mockSource) RefreshCredentials(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type memSink struct {
	header    []string
	rows      [][]string
	closed    bool
	err       error
	headerErr error
}

func (s *memSink) WriteHeader(_ context.Context, columns []string) error {
	if s.headerErr != nil {
		return s.headerErr
	}
	s.header = columns
	return nil
}

func (s *memSink) WriteRow(_ context.Context, row []string) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *memSink) Close(context.Context) error {
	s.closed = true
	return nil
}

func (s *memSink) render() []byte {
	var b strings.Builder
	b.WriteString(strings.Join(s.header, "|") + "\n")
	for _, r := range s.rows {
		b.WriteString(strings.Join(r, "|") + "\n")
	}
	return []byte(b.String())
}

type memCheckpoints struct {
	tokens map[string]string
	saves  []string
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{tokens: make(map[string]string)}
}

func (c *memCheckpoints) Load(_ context.Context, key string) (string, bool, error) {
	token, ok := c.tokens[key]
	return token, ok, nil
}

func (c *memCheckpoints) Save(_ context.Context, key, token string) error {
	c.tokens[key] = token
	c.saves = append(c.saves, token)
	return nil
}

func (c *memCheckpoints) Delete(_ context.Context, key string) error {
	delete(c.tokens, key)
	return nil
}

func tokenOK(token string) *marketo.PagingTokenResponse {
	return &marketo.PagingTokenResponse{Success: true, NextPageToken: token}
}

func pageOf(next string, more bool, records ...marketo.ActivityRecord) *marketo.ActivityPage {
	if records == nil {
		records = []marketo.ActivityRecord{}
	}
	return &marketo.ActivityPage{Success: true, NextPageToken: next, MoreResult: more, Result: records}
}

func failedPage(code, message string) *marketo.ActivityPage {
	return &marketo.ActivityPage{Success: false, Errors: []errors.APIError{{Code: code, Message: message}}}
}

func newTestExporter(t *testing.T, cfg RunConfig, src Source, sink RowWriter, mutate ...func(*Options)) *Exporter {
	t.Helper()
	opts := Options{
		Source: src,
		Sink:   sink,
		RunID:  "run-test",
		Logger: logger.NewTestLogger(t),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewExporter(cfg, opts)
}

var baseConfig = RunConfig{TrackedFields: []string{"Lead Score"}, SinceDate: "2015-04-01"}

func TestExporter_EndToEnd(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", false,
		*record(1, 101, NewLead, ""),
		*record(2, 101, ChangeDataValue, "Lead Score", attr("New Value", "42")),
	), nil)
	sink := &memSink{}

	summary, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ActivityId", "ActivityDate", "ActivityTypeId", "ActivityTypeName", "LeadId", "Lead Score"}, sink.header)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, []string{"1", "2015-04-09 05:34:40", "12", "New Lead", "101", ""}, sink.rows[0])
	assert.Equal(t, []string{"2", "2015-04-09 05:34:40", "13", "Change Data Value", "101", "42"}, sink.rows[1])
	assert.True(t, sink.closed)

	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, "PT2", summary.LastToken)
	assert.Equal(t, "run-test", summary.RunID)
	src.AssertExpectations(t)
}

func TestExporter_FollowsContinuationTokens(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", true, *record(1, 1, NewLead, "")), nil).Once()
	src.On("GetActivities", mock.Anything, "PT2", "12,13").Return(pageOf("PT3", true), nil).Once()
	src.On("GetActivities", mock.Anything, "PT3", "12,13").Return(pageOf("PT4", false, *record(2, 2, NewLead, "")), nil).Once()
	sink := &memSink{}

	summary, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pages)
	assert.Len(t, sink.rows, 2)
	src.AssertExpectations(t)
	src.AssertNumberOfCalls(t, "GetActivities", 3)
}

func TestExporter_RefreshesExpiredToken(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(failedPage("602", "Access token expired"), nil).Once()
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", false, *record(1, 101, NewLead, "")), nil).Once()
	src.On("RefreshCredentials", mock.Anything).Return(nil).Once()
	sink := &memSink{}

	summary, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AuthRefreshes)
	assert.Equal(t, 1, summary.Pages)
	assert.Len(t, sink.rows, 1)
	src.AssertExpectations(t)
}

func TestExporter_RefreshesOnPagingToken(t *testing.T) {
	src := new(mockSource)
	expired := &marketo.PagingTokenResponse{Success: false, Errors: []errors.APIError{{Code: "602", Message: "Access token expired"}}}
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(expired, nil).Once()
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil).Once()
	src.On("RefreshCredentials", mock.Anything).Return(nil).Once()
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", false), nil)

	summary, err := newTestExporter(t, baseConfig, src, &memSink{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AuthRefreshes)
	src.AssertExpectations(t)
}

func TestExporter_AuthRetriesExhausted(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(failedPage("602", "Access token expired"), nil)
	src.On("RefreshCredentials", mock.Anything).Return(nil)
	sink := &memSink{}

	exp := newTestExporter(t, baseConfig, src, sink, func(o *Options) { o.MaxAuthRetries = 2 })
	summary, err := exp.Run(context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthRetriesExhausted))
	assert.Equal(t, 2, summary.AuthRefreshes)
	src.AssertNumberOfCalls(t, "GetActivities", 3)
	src.AssertNumberOfCalls(t, "RefreshCredentials", 2)
	assert.Empty(t, sink.rows)
	assert.True(t, sink.closed)
}

func TestExporter_FatalUpstreamError(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", true, *record(1, 1, NewLead, "")), nil).Once()
	src.On("GetActivities", mock.Anything, "PT2", "12,13").Return(failedPage("606", "Max rate limit exceeded"), nil).Once()
	sink := &memSink{}

	summary, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.ErrCodeAPIError))
	assert.Contains(t, err.Error(), "Max rate limit exceeded")
	assert.Contains(t, summary.Error, "606")
	assert.Len(t, sink.rows, 1, "rows from earlier pages stay written")
	src.AssertNumberOfCalls(t, "GetActivities", 2)
	src.AssertNotCalled(t, "RefreshCredentials", mock.Anything)
}

func TestExporter_MissingResultIsMalformed(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(&marketo.ActivityPage{Success: true, NextPageToken: "PT2", MoreResult: true}, nil)

	_, err := newTestExporter(t, baseConfig, src, &memSink{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedPage))
}

func TestExporter_EmptyPagingToken(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK(""), nil)

	_, err := newTestExporter(t, baseConfig, src, &memSink{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedPage))
	src.AssertNotCalled(t, "GetActivities", mock.Anything, mock.Anything, mock.Anything)
}

func TestExporter_TransportErrorIsFatal(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(nil, errors.NewTransportError("get paging token", stderrors.New("connection refused")))

	_, err := newTestExporter(t, baseConfig, src, &memSink{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTransportError))
}

func TestExporter_SinkErrorStopsRun(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", true, *record(1, 1, NewLead, "")), nil).Once()
	sink := &memSink{err: errors.NewSinkWriteError("memory", stderrors.New("disk full"))}

	_, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSinkWriteFailed))
	src.AssertNumberOfCalls(t, "GetActivities", 1)
}

// recordingLogger keeps every field attached to or logged through it.
type recordingLogger struct {
	fields *[]map[string]interface{}
}

func (l recordingLogger) log(fields map[string]interface{}) { *l.fields = append(*l.fields, fields) }

func (l recordingLogger) Debug(_ string, f map[string]interface{}) { l.log(f) }
func (l recordingLogger) Info(_ string, f map[string]interface{})  { l.log(f) }
func (l recordingLogger) Warn(_ string, f map[string]interface{})  { l.log(f) }
func (l recordingLogger) Error(_ string, f map[string]interface{}) { l.log(f) }
func (l recordingLogger) Sync() error                              { return nil }

func (l recordingLogger) WithFields(f map[string]interface{}) logger.Logger {
	l.log(f)
	return l
}

func (l recordingLogger) WithError(err error) logger.Logger {
	l.log(map[string]interface{}{"error": err.Error()})
	return l
}

func TestExporter_LeavesRunIDToCaller(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", false, *record(1, 1, NewLead, "")), nil)

	var fields []map[string]interface{}
	exp := newTestExporter(t, baseConfig, src, &memSink{}, func(o *Options) { o.Logger = recordingLogger{fields: &fields} })
	_, err := exp.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, fields)
	for _, f := range fields {
		assert.NotContains(t, f, "runId")
	}
}

func TestExporter_ClosesSinkWhenHeaderFails(t *testing.T) {
	src := new(mockSource)
	sink := &memSink{headerErr: errors.NewSinkWriteError("memory", stderrors.New("read-only file system"))}

	_, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSinkWriteFailed))
	assert.True(t, sink.closed)
	src.AssertNotCalled(t, "GetPagingToken", mock.Anything, mock.Anything)
}

func TestExporter_SkipsAndDiscards(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", false,
		*record(1, 1, NewLead, ""),
		*record(2, 1, ActivityType(46), "Interesting Moment"),
		*record(3, 1, ChangeDataValue, "Email Address", attr("New Value", "x@example.com")),
	), nil)
	sink := &memSink{}

	summary, err := newTestExporter(t, baseConfig, src, sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 1, summary.Rows)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Discarded)
}

func TestExporter_Checkpoints(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", true), nil).Once()
	src.On("GetActivities", mock.Anything, "PT2", "12,13").Return(pageOf("PT3", false), nil).Once()
	cp := newMemCheckpoints()

	_, err := newTestExporter(t, baseConfig, src, &memSink{}, func(o *Options) {
		o.Checkpoints = cp
		o.CheckpointKey = "activity-export:test:2015-04-01"
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"PT2"}, cp.saves)
	assert.Empty(t, cp.tokens, "checkpoint is cleared after a complete run")
}

func TestExporter_ResumeFromCheckpoint(t *testing.T) {
	src := new(mockSource)
	src.On("GetActivities", mock.Anything, "PT7", "12,13").Return(pageOf("PT8", false, *record(1, 1, NewLead, "")), nil)
	cp := newMemCheckpoints()
	cp.tokens["key"] = "PT7"

	summary, err := newTestExporter(t, baseConfig, src, &memSink{}, func(o *Options) {
		o.Checkpoints = cp
		o.CheckpointKey = "key"
		o.Resume = true
	}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Resumed)
	src.AssertNotCalled(t, "GetPagingToken", mock.Anything, mock.Anything)
	src.AssertExpectations(t)
}

func TestExporter_CancelledContext(t *testing.T) {
	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExporter(t, baseConfig, src, &memSink{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	src.AssertNotCalled(t, "GetActivities", mock.Anything, mock.Anything, mock.Anything)
}

func TestExporter_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13").Return(pageOf("PT2", false), nil)

	_, err := newTestExporter(t, baseConfig, src, &memSink{}, func(o *Options) {
		o.Tracer = tp.Tracer("test")
	}).Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"export.page", "export.run"}, names)
}

func TestExporter_Golden(t *testing.T) {
	cfg := RunConfig{
		TrackedFields:       []string{"Lead Score"},
		IncludeMailActivity: true,
		IncludeWebActivity:  true,
		SinceDate:           "2015-04-01",
	}

	src := new(mockSource)
	src.On("GetPagingToken", mock.Anything, "2015-04-01").Return(tokenOK("PT1"), nil)
	src.On("GetActivities", mock.Anything, "PT1", "12,13,10,11,1,3").Return(pageOf("PT2", true,
		*record(1, 101, NewLead, ""),
		*record(2, 101, ChangeDataValue, "Lead Score", attr("New Value", "42")),
		*record(3, 101, OpenEmail, "Spring.Newsletter"),
	), nil).Once()
	src.On("GetActivities", mock.Anything, "PT2", "12,13,10,11,1,3").Return(pageOf("PT3", false,
		*record(4, 101, ClickEmail, "Spring.Newsletter", attr("Link", "https://example.com/a")),
		*record(5, 101, VisitWebpage, "example.com/pricing", attr("Query Parameters", "utm_source=news")),
		*record(6, 101, ActivityType(46), "Interesting Moment"),
		*record(7, 101, ChangeDataValue, "Email Address", attr("New Value", "x@example.com")),
		*record(8, 101, ClickLink, "example.com/signup"),
	), nil).Once()
	sink := &memSink{}

	_, err := newTestExporter(t, cfg, src, sink).Run(context.Background())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "mail_and_web", sink.render())
}
