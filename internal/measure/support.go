package measure

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/ketgo/qubit"
)

// Support returns the logical basis states whose probability exceeds
// threshold. Each rank collects its own block into a bitmap; the bitmaps are
// broadcast in rank order and merged, so every rank returns the same set.
func (m *Measurer) Support(ctx context.Context, perm *qubit.Permutation, threshold float64) (*roaring64.Bitmap, error) {
	l := m.engine.Layout()
	st := m.engine.State()

	own := roaring64.New()
	for i := uint64(0); i < l.DataBlockSize; i++ {
		if norm(st.At(i)) > threshold {
			own.Add(perm.InversePermutateBits(l.GlobalIndex(m.comm.Rank(), i)))
		}
	}
	own.RunOptimize()

	out := roaring64.New()
	for r := 0; r < m.comm.Size(); r++ {
		if r == m.comm.Rank() {
			out.Or(own)
		}
		if m.comm.Size() == 1 {
			break
		}

		var payload []byte
		if r == m.comm.Rank() {
			b, err := own.MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("measure: encode support: %w", err)
			}
			payload = b
		}

		head := make([]byte, 8)
		binary.LittleEndian.PutUint64(head, uint64(len(payload)))
		if err := m.comm.Broadcast(ctx, r, head); err != nil {
			return nil, fmt.Errorf("measure: gather support size of rank %d: %w", r, err)
		}
		if r != m.comm.Rank() {
			payload = make([]byte, binary.LittleEndian.Uint64(head))
		}
		if err := m.comm.Broadcast(ctx, r, payload); err != nil {
			return nil, fmt.Errorf("measure: gather support of rank %d: %w", r, err)
		}
		if r == m.comm.Rank() {
			continue
		}

		peer := roaring64.New()
		if err := peer.UnmarshalBinary(payload); err != nil {
			return nil, fmt.Errorf("measure: decode support of rank %d: %w", r, err)
		}
		out.Or(peer)
	}
	return out, nil
}
