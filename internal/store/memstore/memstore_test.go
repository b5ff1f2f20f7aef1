package memstore

import (
	"testing"

	"github.com/rezkam/jobcore/internal/store"
	"github.com/rezkam/jobcore/internal/store/storetest"
)

func TestMemstore_Compliance(t *testing.T) {
	storetest.Run(t, func() (store.Store, func()) {
		return New(), func() {}
	})
}
