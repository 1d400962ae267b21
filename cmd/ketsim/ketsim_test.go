package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const bell = `
qubits: 3
ranks: 2
page_qubits: 1
seed: 7
steps:
  - gate: H
    qubits: [0]
  - gate: CNOT
    qubits: [2, 0]
  - measure: 2
`

func writeRunFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseRunFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"Bell", bell, false},
		{"NoQubits", "ranks: 1\n", true},
		{"UnknownGate", "qubits: 2\nsteps:\n  - gate: FOO\n    qubits: [0]\n", true},
		{"WrongArity", "qubits: 2\nsteps:\n  - gate: CNOT\n    qubits: [0]\n", true},
		{"MissingParams", "qubits: 2\nsteps:\n  - gate: U3\n    qubits: [0]\n", true},
		{"TwoActions", "qubits: 2\nsteps:\n  - gate: H\n    qubits: [0]\n    measure: 1\n", true},
		{"BadSwap", "qubits: 2\nsteps:\n  - swap: [0]\n", true},
		{"ZeroShots", "qubits: 2\nsteps:\n  - sample: 0\n", true},
		{"SampleAndSwap", "qubits: 2\nsteps:\n  - sample: 5\n    swap: [0, 1]\n", true},
		{"Sample", "qubits: 2\nsteps:\n  - sample: 5\n", false},
		{"FileWithoutDir", "qubits: 2\nstorage: file\n", true},
		{"UnknownSelector", "qubits: 2\nselector: middle\n", true},
		{"Controlled", "qubits: 3\nsteps:\n  - gate: CCH\n    qubits: [0, 1, 2]\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := ParseRunFile([]byte(tt.content))
			if tt.wantErr {
				assert.ErrorIs(t, err, errRunFile)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, rf)
		})
	}
}

func TestRunCmd_Bell(t *testing.T) {
	path := writeRunFile(t, bell)

	out, err := execute(t, "run", path, "-o", "yaml", "--amplitudes")
	require.NoError(t, err)

	var res Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	require.Len(t, res.Measurements, 1)
	outcome := float64(res.Measurements[0].Outcome)
	assert.InDelta(t, outcome, res.Probabilities[0], 1e-12)
	assert.InDelta(t, outcome, res.Probabilities[2], 1e-12)
	assert.InDelta(t, 0, res.Probabilities[1], 1e-12)
	assert.InDelta(t, 1, res.Norm, 1e-12)
	assert.Len(t, res.Amplitudes, 8)
	assert.Equal(t, uint64(1), res.SupportSize)
	assert.Equal(t, []uint64{uint64(res.Measurements[0].Outcome) * 0b101}, res.Support)
}

func TestRunCmd_Sample(t *testing.T) {
	circuit := `
qubits: 3
ranks: 4
seed: 5
steps:
  - gate: H
    qubits: [0]
  - gate: CNOT
    qubits: [2, 0]
  - sample: 400
  - measure: 0
`
	path := writeRunFile(t, circuit)

	out, err := execute(t, "run", path, "-o", "yaml")
	require.NoError(t, err)

	var res Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, 2, ev.Step)
	assert.Equal(t, 400, ev.Shots)
	assert.Len(t, ev.Counts, 2)
	assert.Equal(t, 400, ev.Counts[0b000]+ev.Counts[0b101])
	assert.InDelta(t, 200, ev.Counts[0b000], 60)

	out, err = execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "step 2: sample 400 shots")
	assert.Contains(t, out, "  |101> ")
}

func TestRunCmd_Text(t *testing.T) {
	path := writeRunFile(t, bell)

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "layout: qubits=3 ranks=2")
	assert.Contains(t, out, "step 2: measure q2")
	assert.Contains(t, out, "norm = 1.0000")
	assert.Contains(t, out, "support: 1 basis states")
}

func TestRunCmd_RankCountsAgree(t *testing.T) {
	circuit := `
qubits: 6
seed: 3
steps:
  - gate: H
    qubits: [5]
  - gate: U3
    params: [0.3, 0.2, 0.1]
    qubits: [0]
  - gate: CNOT
    qubits: [4, 5]
  - gate: TOFFOLI
    qubits: [1, 0, 4]
  - swap: [0, 5]
  - gate: CR
    params: [0.7]
    qubits: [3, 5]
  - gate: EY
    params: [0.4]
    qubits: [3]
`
	var probs [][]float64
	for _, extra := range []string{
		"ranks: 1\n",
		"ranks: 2\npage_qubits: 2\n",
		"ranks: 4\npage_qubits: 1\nselector: low\n",
		"ranks: 1\npage_qubits: 2\non_cache_qubits: 3\nstorage: anonymous\n",
	} {
		rf, err := ParseRunFile([]byte(circuit + extra))
		require.NoError(t, err)
		res, err := runInproc(context.Background(), rf, runConfig{})
		require.NoError(t, err, extra)
		probs = append(probs, res.Probabilities)
	}
	for _, p := range probs[1:] {
		assert.InDeltaSlice(t, probs[0], p, 1e-10)
	}
}

func TestRunInproc_Metrics(t *testing.T) {
	rf, err := ParseRunFile([]byte(bell))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	_, err = runInproc(context.Background(), rf, runConfig{registry: reg})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ketgo_gates_total")
	assert.Contains(t, names, "ketgo_measurements_total")
	assert.Contains(t, names, "ketgo_interchange_swaps_total")
}

func TestWorkerCmd(t *testing.T) {
	addrs := make([]string, 2)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		require.NoError(t, ln.Close())
	}
	path := writeRunFile(t, bell)
	session := uuid.NewString()

	outs := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for r := range addrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[r], errs[r] = execute(t, "worker", path,
				"--rank", strconv.Itoa(r),
				"--peers", strings.Join(addrs, ","),
				"--codec", "lz4",
				"--session", session,
			)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Contains(t, outs[0], "norm = 1.0000")
	assert.Empty(t, outs[1])
}

func TestWorkerCmd_PeerCount(t *testing.T) {
	path := writeRunFile(t, bell)
	_, err := execute(t, "worker", path, "--peers", "127.0.0.1:1")
	assert.ErrorContains(t, err, "wants 2 ranks")
}

func TestLayoutCmd(t *testing.T) {
	out, err := execute(t, "layout", "--qubits", "10", "--ranks", "4", "--page-qubits", "3", "--on-cache-qubits", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "local=8 page=3 nonpage=5 on-cache=2 staging=true")
	assert.Contains(t, out, "on-cache buffer:     4 amplitudes")

	_, err = execute(t, "layout", "--qubits", "4", "--ranks", "3")
	assert.Error(t, err)
}

func TestGatesCmd(t *testing.T) {
	out, err := execute(t, "gates")
	require.NoError(t, err)
	assert.Contains(t, out, "CNOT")
	assert.Contains(t, out, "U3       params=3")
}

func TestWriteResult_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeResult(&buf, &Result{}, "xml"))
}
