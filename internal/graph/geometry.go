package graph

import "fmt"

// Geometry holds the fixed receiver/sender incidence matrices for the
// fully-connected interaction graph without self loops. Pair p enumerates
// ordered atom pairs (i, j), i != j, in row-major order; atom j receives
// the message sent by atom i.
type Geometry struct {
	Atoms   int
	RelRec  [][]float64
	RelSend [][]float64

	receivers []int
	senders   []int
}

func NewGeometry(atoms int) (*Geometry, error) {
	if atoms < 2 {
		return nil, fmt.Errorf("geometry requires at least 2 atoms, got %d", atoms)
	}

	pairs := atoms * (atoms - 1)
	g := &Geometry{
		Atoms:     atoms,
		RelRec:    make([][]float64, 0, pairs),
		RelSend:   make([][]float64, 0, pairs),
		receivers: make([]int, 0, pairs),
		senders:   make([]int, 0, pairs),
	}
	for i := 0; i < atoms; i++ {
		for j := 0; j < atoms; j++ {
			if i == j {
				continue
			}
			rec := make([]float64, atoms)
			send := make([]float64, atoms)
			rec[j] = 1
			send[i] = 1
			g.RelRec = append(g.RelRec, rec)
			g.RelSend = append(g.RelSend, send)
			g.receivers = append(g.receivers, j)
			g.senders = append(g.senders, i)
		}
	}
	return g, nil
}

func (g *Geometry) Pairs() int {
	return len(g.receivers)
}

// Receiver returns the atom index receiving on pair p.
func (g *Geometry) Receiver(p int) int {
	return g.receivers[p]
}

// Sender returns the atom index sending on pair p.
func (g *Geometry) Sender(p int) int {
	return g.senders[p]
}
