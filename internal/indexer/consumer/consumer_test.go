package consumer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
)

type fakeProcessor struct {
	bodies []string
	err    error
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, r io.Reader) (index.DocID, error) {
	b, _ := io.ReadAll(r)
	f.bodies = append(f.bodies, string(b))
	if f.err != nil {
		return 0, f.err
	}
	return index.DocID(len(f.bodies)), nil
}

func TestHandleMessage(t *testing.T) {
	p := &fakeProcessor{}
	h := HandleMessage(p)
	if err := h(context.Background(), []byte("k"), []byte(`{"url":"u","text":"t"}`)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(p.bodies) != 1 || p.bodies[0] != `{"url":"u","text":"t"}` {
		t.Errorf("bodies = %q", p.bodies)
	}

	p.err = apperrors.Fatal(errors.New("mismatch"))
	if err := h(context.Background(), nil, []byte("{}")); !errors.Is(err, apperrors.ErrFatal) {
		t.Errorf("err = %v, want fatal passed through", err)
	}
}
