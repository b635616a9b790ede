package tracer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movingPose struct {
	lock sync.Mutex
	y    float64
}

func (p *movingPose) X() float64     { return 0 }
func (p *movingPose) Theta() float64 { return 0 }
func (p *movingPose) Y() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.y++
	return p.y
}

func TestRecorderLoop(t *testing.T) {
	r := New(&movingPose{}, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go r.Loop(ctx, &wg)

	require.Eventually(t, func() bool {
		return len(r.Samples()) >= 5
	}, time.Second, time.Millisecond)
	cancel()
	wg.Wait()

	samples := r.Samples()
	for i := 1; i < len(samples); i++ {
		assert.Greater(t, samples[i].Y, samples[i-1].Y)
		assert.GreaterOrEqual(t, samples[i].T, samples[i-1].T)
	}
}

func TestRenderDrawsPath(t *testing.T) {
	samples := []Sample{{Y: 0}, {Y: 12}, {Y: 24}}
	img, err := Render(samples, 200)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())

	// Halfway up the path.
	r, g, b, _ := img.At(20, 100).RGBA()
	assert.Greater(t, b, r)
	assert.Greater(t, b, g)

	// Far from the path stays white-ish.
	r, _, _, _ = img.At(150, 150).RGBA()
	assert.Greater(t, r, uint32(0xe000))
}

func TestSavePNG(t *testing.T) {
	_, err := Render(nil, 100)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "path.png")
	require.NoError(t, SavePNG(path, []Sample{{}, {X: 5, Y: 5, Theta: 45}}, 100))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}
