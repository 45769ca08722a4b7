package service_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/onsi/gomega"
	"pgregory.net/rapid"

	"github.com/ASHISH26940/artstore/internal/service"
	"github.com/ASHISH26940/artstore/internal/store"
)

// brokenStore fails every call the way an unreachable database would.
type brokenStore struct{}

func (brokenStore) Create(context.Context, int32, string) (int64, error) {
	return 0, &store.StorageError{Op: "create", Err: errors.New("connection refused")}
}

func (brokenStore) Get(context.Context, int64) (store.Record, bool, error) {
	return store.Record{}, false, &store.StorageError{Op: "get", Err: errors.New("connection refused")}
}

func TestService_SaveThenLoad(t *testing.T) {
	t.Parallel()
	g := gomega.NewWithT(t)
	ctx := context.Background()
	svc := service.New(store.NewMemory())

	id, err := svc.Save(ctx, 1, `{"x":1}`)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(id).To(gomega.BeEquivalentTo(1))

	data, err := svc.Load(ctx, id)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(data).To(gomega.Equal(`{"x":1}`))
}

// TestService_RoundTrip_Property proves Load returns exactly what Save stored
// and that every Save gets an id never handed out before.
func TestService_RoundTrip_Property(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		g := gomega.NewWithT(rt)
		ctx := context.Background()
		svc := service.New(store.NewMemory())

		payloads := rapid.SliceOfN(rapid.StringN(1, 64, -1), 1, 20).Draw(rt, "payloads")
		version := rapid.Int32().Draw(rt, "version")

		ids := make(map[int64]string, len(payloads))
		for _, p := range payloads {
			id, err := svc.Save(ctx, version, p)
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(ids).NotTo(gomega.HaveKey(id))
			ids[id] = p
		}
		for id, want := range ids {
			got, err := svc.Load(ctx, id)
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(got).To(gomega.Equal(want))
		}
	})
}

// TestService_LoadUnknown_Property proves ids never produced by Save are not found.
func TestService_LoadUnknown_Property(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		g := gomega.NewWithT(rt)
		ctx := context.Background()
		svc := service.New(store.NewMemory())

		saved := rapid.IntRange(0, 10).Draw(rt, "saved")
		for i := 0; i < saved; i++ {
			_, err := svc.Save(ctx, 1, "{}")
			g.Expect(err).NotTo(gomega.HaveOccurred())
		}
		id := rapid.Int64Range(int64(saved)+1, 1<<53).Draw(rt, "id")

		_, err := svc.Load(ctx, id)
		var nf *service.NotFoundError
		g.Expect(errors.As(err, &nf)).To(gomega.BeTrue())
		g.Expect(nf.ID).To(gomega.Equal(id))
	})
}

func TestService_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.New(store.NewMemory())

	t.Run("empty data", func(t *testing.T) {
		g := gomega.NewWithT(t)
		_, err := svc.Save(ctx, 1, "")
		var verr *service.ValidationError
		g.Expect(errors.As(err, &verr)).To(gomega.BeTrue())
		g.Expect(verr.Field).To(gomega.Equal("data"))
	})

	t.Run("non-positive id", func(t *testing.T) {
		g := gomega.NewWithT(t)
		for _, id := range []int64{0, -1} {
			_, err := svc.Load(ctx, id)
			var verr *service.ValidationError
			g.Expect(errors.As(err, &verr)).To(gomega.BeTrue())
			g.Expect(verr.Field).To(gomega.Equal("id"))
		}
	})
}

func TestService_StorageErrorsPropagate(t *testing.T) {
	t.Parallel()
	g := gomega.NewWithT(t)
	ctx := context.Background()
	svc := service.New(brokenStore{})

	_, err := svc.Save(ctx, 1, "{}")
	var serr *store.StorageError
	g.Expect(errors.As(err, &serr)).To(gomega.BeTrue())
	g.Expect(serr.Op).To(gomega.Equal("create"))

	_, err = svc.Load(ctx, 1)
	g.Expect(errors.As(err, &serr)).To(gomega.BeTrue())
	g.Expect(serr.Op).To(gomega.Equal("get"))
}

func TestService_ConcurrentSaves(t *testing.T) {
	t.Parallel()
	g := gomega.NewWithT(t)
	ctx := context.Background()
	svc := service.New(store.NewMemory())

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id, err := svc.Save(ctx, 1, "{}")
			if err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		g.Expect(seen).NotTo(gomega.HaveKey(id))
		seen[id] = true
	}
	g.Expect(seen).To(gomega.HaveLen(n))
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		want    int32
		wantErr bool
	}{
		{name: "plain", raw: "3", want: 3},
		{name: "padded", raw: " 12 ", want: 12},
		{name: "negative", raw: "-1", want: -1},
		{name: "missing", raw: "", wantErr: true},
		{name: "word", raw: "two", wantErr: true},
		{name: "float", raw: "1.5", wantErr: true},
		{name: "overflow", raw: "4294967296", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := gomega.NewWithT(t)
			got, err := service.ParseVersion(tc.raw)
			if tc.wantErr {
				var verr *service.ValidationError
				g.Expect(errors.As(err, &verr)).To(gomega.BeTrue())
				g.Expect(verr.Field).To(gomega.Equal("version"))
				return
			}
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(got).To(gomega.Equal(tc.want))
		})
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		g := gomega.NewWithT(rt)
		want := rapid.Int64().Draw(rt, "id")
		got, err := service.ParseID(strconv.FormatInt(want, 10))
		g.Expect(err).NotTo(gomega.HaveOccurred())
		g.Expect(got).To(gomega.Equal(want))
	})

	g := gomega.NewWithT(t)
	_, err := service.ParseID("abc")
	var verr *service.ValidationError
	g.Expect(errors.As(err, &verr)).To(gomega.BeTrue())
	g.Expect(verr.Field).To(gomega.Equal("id"))
}
