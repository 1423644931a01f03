package memory

import (
	"testing"

	"github.com/zjrosen/layerforge/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, New())
}
