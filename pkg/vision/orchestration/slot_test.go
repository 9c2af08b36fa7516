package orchestration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yangga/vision-runner/pkg/vision"
)

func TestPredictorSlotEmptyByDefault(t *testing.T) {
	t.Parallel()

	var slot PredictorSlot
	require.Nil(t, slot.Load())
}

func TestPredictorSlotSwapReturnsPrevious(t *testing.T) {
	t.Parallel()

	var slot PredictorSlot
	first := newFakeDetector()
	second := newFakeClassifier()

	require.Nil(t, slot.Swap(first))
	require.Same(t, vision.Predictor(first), slot.Load())

	require.Same(t, vision.Predictor(first), slot.Swap(second))
	require.Same(t, vision.Predictor(second), slot.Load())
}

func TestPredictorSlotConcurrentSwapAndLoad(t *testing.T) {
	t.Parallel()

	var slot PredictorSlot
	predictors := []vision.Predictor{newFakeDetector(), newFakeClassifier()}

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			slot.Swap(predictors[i%len(predictors)])
		}
	}()

	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for j := 0; j < 10000; j++ {
				if p := slot.Load(); p != nil {
					// Every observed predictor must be a complete instance.
					assert.Contains(t, predictors, p)
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	<-writerDone
}
