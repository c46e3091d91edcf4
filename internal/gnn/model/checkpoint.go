package model

import (
	"encoding/gob"
	"io"

	"github.com/molforge/graphchem/pkg/errors"
)

// Checkpoint format identification.  Version bumps whenever the snapshot
// layout changes incompatibly; Load rejects anything it does not speak.
const (
	checkpointMagic   = "GRAPHCHEM"
	checkpointVersion = 1
)

// paramState is the serialized form of one trainable parameter.
type paramState struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// Snapshot is a point-in-time copy of the model's architecture and weights,
// suitable for gob encoding.
type Snapshot struct {
	Magic   string
	Version int
	Config  Config
	Params  []paramState
}

// Snapshot copies the current weights into a serializable form.
func (m *GraphConvModel) Snapshot() *Snapshot {
	s := &Snapshot{Magic: checkpointMagic, Version: checkpointVersion, Config: m.cfg}
	for _, p := range m.params {
		rows, cols := p.Value.Dims()
		data := make([]float64, rows*cols)
		for i := 0; i < rows; i++ {
			copy(data[i*cols:(i+1)*cols], p.Value.RawRowView(i))
		}
		s.Params = append(s.Params, paramState{Name: p.Name, Rows: rows, Cols: cols, Data: data})
	}
	return s
}

// Restore loads weights from a snapshot taken from a model with the same
// architecture.
func (m *GraphConvModel) Restore(s *Snapshot) error {
	if len(s.Params) != len(m.params) {
		return errors.Newf(errors.ErrCodeCheckpointFailed,
			"snapshot has %d parameters, model has %d", len(s.Params), len(m.params))
	}
	for i, ps := range s.Params {
		p := m.params[i]
		rows, cols := p.Value.Dims()
		if ps.Name != p.Name || ps.Rows != rows || ps.Cols != cols {
			return errors.Newf(errors.ErrCodeCheckpointFailed,
				"snapshot parameter %d is %s (%dx%d), model expects %s (%dx%d)",
				i, ps.Name, ps.Rows, ps.Cols, p.Name, rows, cols)
		}
		if len(ps.Data) != rows*cols {
			return errors.Newf(errors.ErrCodeCheckpointFailed,
				"snapshot parameter %s has %d values, want %d", ps.Name, len(ps.Data), rows*cols)
		}
		for r := 0; r < rows; r++ {
			copy(p.Value.RawRowView(r), ps.Data[r*cols:(r+1)*cols])
		}
	}
	return nil
}

// Save gob-encodes the model's snapshot to w.
func (m *GraphConvModel) Save(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m.Snapshot()); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "failed to encode model checkpoint")
	}
	return nil
}

// Load reconstructs a model from a gob checkpoint previously written with
// Save.
func Load(r io.Reader) (*GraphConvModel, error) {
	var s Snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCheckpointFailed, "failed to decode model checkpoint")
	}
	if s.Magic != checkpointMagic {
		return nil, errors.New(errors.ErrCodeCheckpointFailed, "not a model checkpoint")
	}
	if s.Version != checkpointVersion {
		return nil, errors.Newf(errors.ErrCodeCheckpointFailed,
			"unsupported checkpoint version %d, want %d", s.Version, checkpointVersion)
	}
	m, err := New(s.Config)
	if err != nil {
		return nil, err
	}
	if err := m.Restore(&s); err != nil {
		return nil, err
	}
	return m, nil
}
