package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type API struct {
	Addr    string
	LogFile string
}

type Store struct {
	LedgerPath  string
	JournalPath string
}

type Engine struct {
	MakerFeeBps int64
	TakerFeeBps int64

	Admin        string
	FeeRecipient string
	Custody      string
}

// AssetEntry is one allow-list entry parsed from config
type AssetEntry struct {
	Symbol         string
	MinOrderAmount int64
	Decimals       int8
}

type Config struct {
	API    API
	Store  Store
	Engine Engine
	Assets []AssetEntry
}

func Default() Config {
	return Config{
		API: API{
			Addr:    ":8080",
			LogFile: "data/swapd.log",
		},
		Store: Store{
			LedgerPath:  "data/ledger.db",
			JournalPath: "data/book.db",
		},
		Engine: Engine{
			MakerFeeBps:  150, // 1.5%
			TakerFeeBps:  80,  // 0.8%
			Admin:        "0x0000000000000000000000000000000000000002",
			FeeRecipient: "0x0000000000000000000000000000000000000003",
			Custody:      "0x0000000000000000000000000000000000000001",
		},
		Assets: []AssetEntry{
			{Symbol: "GOLD", MinOrderAmount: 100, Decimals: 2},
			{Symbol: "SILVER", MinOrderAmount: 250, Decimals: 2},
			{Symbol: "OIL", MinOrderAmount: 1000, Decimals: 3},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.API.LogFile = v
	}
	if v := os.Getenv("LEDGER_DB"); v != "" {
		cfg.Store.LedgerPath = v
	}
	if v := os.Getenv("BOOK_DB"); v != "" {
		cfg.Store.JournalPath = v
	}

	if v := os.Getenv("MAKER_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.MakerFeeBps = bps
		}
	}
	if v := os.Getenv("TAKER_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.TakerFeeBps = bps
		}
	}
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		cfg.Engine.Admin = v
	}
	if v := os.Getenv("FEE_RECIPIENT_ADDR"); v != "" {
		cfg.Engine.FeeRecipient = v
	}
	if v := os.Getenv("CUSTODY_ADDR"); v != "" {
		cfg.Engine.Custody = v
	}

	// Allow-list: "GOLD:100:2,SILVER:250:2"
	if v := os.Getenv("ASSETS"); v != "" {
		if assets := ParseAssets(v); len(assets) > 0 {
			cfg.Assets = assets
		}
	}

	return cfg
}

// ParseAssets parses the comma-separated allow-list format
// "SYMBOL:minOrderAmount:decimals". Malformed entries are skipped.
func ParseAssets(s string) []AssetEntry {
	var out []AssetEntry
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		min, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || min <= 0 {
			continue
		}
		dec, err := strconv.ParseInt(parts[2], 10, 8)
		if err != nil || dec < 0 {
			continue
		}
		out = append(out, AssetEntry{
			Symbol:         parts[0],
			MinOrderAmount: min,
			Decimals:       int8(dec),
		})
	}
	return out
}
