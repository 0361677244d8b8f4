package zerodha

import (
	"fmt"
	"sync"
)

// instrumentMapper maps trading symbols to Kite instrument tokens for one exchange.
type instrumentMapper struct {
	mu            sync.RWMutex
	symbolToToken map[string]int
	loaded        bool
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{symbolToToken: make(map[string]int)}
}

func (im *instrumentMapper) addMapping(symbol string, token int) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.symbolToToken[symbol] = token
}

func (im *instrumentMapper) markLoaded() {
	im.mu.Lock()
	im.loaded = true
	im.mu.Unlock()
}

func (im *instrumentMapper) isLoaded() bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.loaded
}

func (im *instrumentMapper) getToken(symbol string) (int, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, ok := im.symbolToToken[symbol]
	if !ok {
		return 0, fmt.Errorf("no instrument token for %s", symbol)
	}
	return token, nil
}
