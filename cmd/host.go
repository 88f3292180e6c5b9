package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wormhole-demo/corebridge/internal/bridge"
	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/storage"
)

// openBridge opens the configured store and bridge, installing the genesis
// guardian set when the store has none yet.
func openBridge(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts ...bridge.Option) (*bridge.Bridge, storage.Store, error) {
	var store storage.Store
	if cfg.InMemory() {
		store = storage.NewMemoryStore()
	} else {
		s, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		store = s
	}

	b, err := bridge.New(logger, cfg.Bridge(), store, opts...)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	if len(cfg.GenesisKeys) > 0 {
		_, err := b.Bootstrap(ctx, cfg.GenesisIndex, cfg.GenesisKeys)
		if err != nil && !errors.Is(err, guardianset.ErrAlreadyBootstrapped) {
			store.Close()
			return nil, nil, fmt.Errorf("install genesis guardian set: %w", err)
		}
	}
	return b, store, nil
}

// readVAA takes a VAA as an argument (hex, optionally 0x-prefixed) or, when
// the argument is "-" or missing, from stdin.
func readVAA(args []string) ([]byte, error) {
	var text string
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	} else {
		text = args[0]
	}
	return decodeHex(text)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
