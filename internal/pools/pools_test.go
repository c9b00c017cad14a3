package pools

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseBufferReset(t *testing.T) {
	buf := GetResponseBuffer()
	buf.WriteString("leftover")
	PutResponseBuffer(buf)

	next := GetResponseBuffer()
	assert.Equal(t, 0, next.Len())
	PutResponseBuffer(next)
}

func TestResponseBufferSizeLimit(t *testing.T) {
	huge := GetResponseBuffer()
	huge.Grow(2 << 20)
	PutResponseBuffer(huge)

	next := GetResponseBuffer()
	assert.LessOrEqual(t, next.Cap(), 1<<20)
	PutResponseBuffer(next)
}

func TestBufferPoolConcurrency(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				buf := GetResponseBuffer()
				buf.WriteString("concurrent")
				PutResponseBuffer(buf)
			}
		}()
	}
	wg.Wait()
}
