package results

import (
	"bytes"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/tempest-pushgateway/metrics"
	"github.com/vexxhost/tempest-pushgateway/subunit"
	"github.com/vexxhost/tempest-pushgateway/types"
)

func ts(secs float64) time.Time {
	return time.Unix(0, int64(secs*1e9)).UTC()
}

type streamBuilder struct {
	t   *testing.T
	buf bytes.Buffer
	w   *subunit.Writer
}

func newStream(t *testing.T) *streamBuilder {
	s := &streamBuilder{t: t}
	s.w = subunit.NewWriter(&s.buf)
	return s
}

func (s *streamBuilder) packet(p *subunit.Packet) *streamBuilder {
	require.NoError(s.t, s.w.Write(p))
	return s
}

// test writes the usual inprogress/final pair for one test.
func (s *streamBuilder) test(id string, start, end float64, status subunit.Status) *streamBuilder {
	s.packet(&subunit.Packet{TestID: id, Status: subunit.StatusInProgress, Timestamp: ts(start)})
	return s.packet(&subunit.Packet{TestID: id, Status: status, Timestamp: ts(end)})
}

func (s *streamBuilder) bytes() []byte {
	return s.buf.Bytes()
}

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// snapshot flattens every sample in reg into "name{labels}" -> value.
func snapshot(t *testing.T, reg *metrics.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()+labelString(m.GetLabel())] = m.GetGauge().GetValue()
		}
	}
	return out
}

func labelString(pairs []*dto.LabelPair) string {
	var parts []string
	for _, lp := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(parts)
	return fmt.Sprint(parts)
}

func TestTranslateSingleSuccess(t *testing.T) {
	const id = "tempest.api.identity.test_x"
	stream := newStream(t).test(id, 1000.0, 1005.5, subunit.StatusSuccess)

	reg := metrics.NewRegistry(discard())
	var diag bytes.Buffer
	recs, err := Translate(bytes.NewReader(stream.bytes()), reg, discard(), Options{Diagnostics: &diag})
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, types.OutcomeSuccess, recs[0].Outcome)
	assert.Equal(t, types.LabelSuccess, recs[0].Label)
	assert.Empty(t, diag.String(), "successful tests are not dumped")

	snap := snapshot(t, reg)
	assert.Equal(t, 1005.5, snap[`tempest_last_run_unixtime[instance="`+id+`"]`])
	assert.Equal(t, 5.5, snap[`tempest_last_run_time[instance="`+id+`"]`])
	assert.Equal(t, 1.0, snap[`tempest_last_run_result[instance="`+id+`" tempest_last_run_result="success"]`])
	assert.Equal(t, 0.0, snap[`tempest_last_run_result[instance="`+id+`" tempest_last_run_result="failure"]`])
}

func TestTranslateOutcomes(t *testing.T) {
	tests := []struct {
		status subunit.Status
		want   types.Outcome
	}{
		{status: subunit.StatusSuccess, want: types.OutcomeSuccess},
		{status: subunit.StatusFail, want: types.OutcomeFailure},
		{status: subunit.StatusSkip, want: types.OutcomeSkip},
		{status: subunit.StatusExpectedFailure, want: types.OutcomeExpectedFailure},
		{status: subunit.StatusUnexpectedSuccess, want: types.OutcomeUnexpectedSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			stream := newStream(t).test("test_a", 1, 3, tt.status)
			recs, err := Translate(bytes.NewReader(stream.bytes()), metrics.NewRegistry(discard()), discard(), Options{})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Outcome)
			assert.Equal(t, 2*time.Second, recs[0].Duration())
		})
	}
}

func TestTranslateUnfinishedTestIsError(t *testing.T) {
	stream := newStream(t).
		test("test_done", 1, 2, subunit.StatusSuccess).
		packet(&subunit.Packet{TestID: "test_hung", Status: subunit.StatusInProgress, Timestamp: ts(3)}).
		packet(&subunit.Packet{TestID: "test_hung", FileName: "stdout", FileBytes: []byte("still waiting"), Timestamp: ts(9)})

	var diag bytes.Buffer
	recs, err := Translate(bytes.NewReader(stream.bytes()), metrics.NewRegistry(discard()), discard(), Options{Diagnostics: &diag})
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, "test_hung", recs[1].ID)
	assert.Equal(t, types.OutcomeError, recs[1].Outcome)
	assert.Equal(t, types.LabelError, recs[1].Label)
	assert.Equal(t, 6*time.Second, recs[1].Duration())
	assert.Contains(t, diag.String(), "test_hung")
	assert.Contains(t, diag.String(), "still waiting")
}

func TestTranslateLabelSetMatchesCompletions(t *testing.T) {
	ids := []string{"test_c", "test_a", "test_b"}
	stream := newStream(t)
	stream.packet(&subunit.Packet{Tags: []string{"global"}, Timestamp: ts(1)})
	for i, id := range ids {
		stream.test(id, float64(i), float64(i)+0.5, subunit.StatusSuccess)
	}

	reg := metrics.NewRegistry(discard())
	_, err := Translate(bytes.NewReader(stream.bytes()), reg, discard(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"test_a", "test_b", "test_c"}, reg.Instances())
}

func TestTranslateIsDeterministic(t *testing.T) {
	stream := newStream(t).
		test("test_a", 10, 12.25, subunit.StatusSuccess).
		test("test_b", 12.5, 13, subunit.StatusFail).
		test("test_c", 13, 13, subunit.StatusSkip).
		bytes()

	first := metrics.NewRegistry(discard())
	second := metrics.NewRegistry(discard())
	_, err := Translate(bytes.NewReader(stream), first, discard(), Options{})
	require.NoError(t, err)
	_, err = Translate(bytes.NewReader(stream), second, discard(), Options{})
	require.NoError(t, err)

	assert.Equal(t, snapshot(t, first), snapshot(t, second))
	assert.Len(t, snapshot(t, first), 3*(len(types.Outcomes)+2))
}

func TestTranslateFailureDiagnostics(t *testing.T) {
	stream := newStream(t).
		packet(&subunit.Packet{TestID: "test_bad", Status: subunit.StatusInProgress, Timestamp: ts(1), Tags: []string{"worker-0"}}).
		packet(&subunit.Packet{TestID: "test_bad", FileName: "traceback", MimeType: "text/x-traceback", FileBytes: []byte("\x1b[31mAssertionError\x1b[0m: ")}).
		packet(&subunit.Packet{TestID: "test_bad", FileName: "traceback", FileBytes: []byte("1 != 2")}).
		packet(&subunit.Packet{TestID: "test_bad", Status: subunit.StatusFail, Timestamp: ts(2)})

	var diag bytes.Buffer
	recs, err := Translate(bytes.NewReader(stream.bytes()), metrics.NewRegistry(discard()), discard(), Options{Diagnostics: &diag})
	require.NoError(t, err)

	require.Len(t, recs, 1)
	require.Len(t, recs[0].Attachments, 1)
	assert.Equal(t, "text/x-traceback", recs[0].Attachments[0].MimeType)
	assert.Equal(t, []string{"worker-0"}, recs[0].Tags)

	out := diag.String()
	assert.Contains(t, out, "FAILURE: test_bad (addFailure)")
	assert.Contains(t, out, "AssertionError: 1 != 2")
	assert.NotContains(t, out, "\x1b[")
}

func TestTranslateDuplicateTestOverwrites(t *testing.T) {
	stream := newStream(t).
		test("test_a", 1, 2, subunit.StatusFail).
		test("test_a", 5, 8, subunit.StatusSuccess)

	reg := metrics.NewRegistry(discard())
	recs, err := Translate(bytes.NewReader(stream.bytes()), reg, discard(), Options{})
	require.NoError(t, err)

	assert.Len(t, recs, 2)
	assert.Equal(t, 1, reg.Len())
	snap := snapshot(t, reg)
	assert.Equal(t, 3.0, snap[`tempest_last_run_time[instance="test_a"]`])
	assert.Equal(t, 1.0, snap[`tempest_last_run_result[instance="test_a" tempest_last_run_result="success"]`])
}

func TestTranslateMissingTimestamps(t *testing.T) {
	stream := newStream(t).
		packet(&subunit.Packet{TestID: "test_a", Status: subunit.StatusInProgress}).
		packet(&subunit.Packet{TestID: "test_a", Status: subunit.StatusSuccess})

	_, err := Translate(bytes.NewReader(stream.bytes()), metrics.NewRegistry(discard()), discard(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, metrics.ErrMissingTimestamps)
	assert.Contains(t, err.Error(), "test_a")
}

func TestTranslateDecodeErrors(t *testing.T) {
	valid := newStream(t).test("test_a", 1, 2, subunit.StatusSuccess).bytes()
	corrupt := bytes.Clone(valid)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, err := Translate(bytes.NewReader(corrupt), metrics.NewRegistry(discard()), discard(), Options{})
	assert.ErrorIs(t, err, subunit.ErrBadCRC)

	noisy := append([]byte("tempest: starting\n"), valid...)
	_, err = Translate(bytes.NewReader(noisy), metrics.NewRegistry(discard()), discard(), Options{})
	assert.ErrorIs(t, err, subunit.ErrNonSubunit)

	var passed []byte
	recs, err := Translate(bytes.NewReader(noisy), metrics.NewRegistry(discard()), discard(), Options{
		Passthrough: func(b []byte) { passed = append(passed, b...) },
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, "tempest: starting\n", string(passed))
}

func TestTranslateEmptyStream(t *testing.T) {
	reg := metrics.NewRegistry(discard())
	recs, err := Translate(bytes.NewReader(nil), reg, discard(), Options{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0, reg.Len())
}
