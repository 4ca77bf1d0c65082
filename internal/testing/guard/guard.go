// Package guard forces test mode for packages whose tests touch the
// runtime entrypoints. Blank-import it so main functions bail out
// instead of binding sockets during go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TALEEM_TEST_MODE") == "" {
			_ = os.Setenv("TALEEM_TEST_MODE", "1")
		}
	})
}
