package evac

// spatialIndex is a dense grid of per-cell agent buckets. Several agents
// may share a cell (a helper and the agent it carries).
type spatialIndex struct {
	cols, rows int
	cells      [][]AgentID // index = y*cols + x
	n          int
}

func newSpatialIndex(cols, rows int) *spatialIndex {
	return &spatialIndex{
		cols:  cols,
		rows:  rows,
		cells: make([][]AgentID, cols*rows),
	}
}

func (s *spatialIndex) idx(p Pos) (int, bool) {
	if p.X < 0 || p.X >= s.cols || p.Y < 0 || p.Y >= s.rows {
		return 0, false
	}
	return p.Y*s.cols + p.X, true
}

// add inserts id at p. Out-of-bounds positions are ignored.
func (s *spatialIndex) add(id AgentID, p Pos) bool {
	i, ok := s.idx(p)
	if !ok {
		return false
	}
	s.cells[i] = append(s.cells[i], id)
	s.n++
	return true
}

// remove deletes id from p using swap-remove.
func (s *spatialIndex) remove(id AgentID, p Pos) {
	i, ok := s.idx(p)
	if !ok {
		return
	}
	bucket := s.cells[i]
	for j, v := range bucket {
		if v == id {
			last := len(bucket) - 1
			bucket[j] = bucket[last]
			s.cells[i] = bucket[:last]
			s.n--
			return
		}
	}
}

func (s *spatialIndex) move(id AgentID, from, to Pos) {
	s.remove(id, from)
	s.add(id, to)
}

// at returns the bucket for p. Callers must not keep it.
func (s *spatialIndex) at(p Pos) []AgentID {
	i, ok := s.idx(p)
	if !ok {
		return nil
	}
	return s.cells[i]
}

func (s *spatialIndex) count() int { return s.n }
