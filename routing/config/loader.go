package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	getter "github.com/hashicorp/go-getter"
	"github.com/pelletier/go-toml/v2"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
	"github.com/EmediongPeter/tiwi-routing-core/routing/registry"
)

// FileReader defines the interface for reading files
type FileReader interface {
	// ReadFile reads the file at the given path and returns the contents
	ReadFile(path string) ([]byte, error)
}

// DefaultFileReader implements FileReader using os.ReadFile
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader wraps a FileReader to provide dependency injection for config loading.
type Loader struct {
	fileReader FileReader
}

// NewLoader creates a Loader with the given FileReader.
func NewLoader(fileReader FileReader) *Loader {
	return &Loader{fileReader: fileReader}
}

// NewDefaultLoader creates a Loader with the default file reader.
func NewDefaultLoader() *Loader {
	return NewLoader(&DefaultFileReader{})
}

// decode unmarshals TOML or JSON, decided by the file extension.
func decode(path string, data []byte, out any) error {
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
		return nil
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}
	return nil
}

// LoadRegistryFile loads and decodes the registry file.
func (l *Loader) LoadRegistryFile(path string) (*RegistryFile, error) {
	data, err := l.fileReader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	var rf RegistryFile
	if err := decode(path, data, &rf); err != nil {
		return nil, err
	}
	if len(rf.Chains) == 0 {
		return nil, fmt.Errorf("registry file %s declares no chains", path)
	}
	return &rf, nil
}

// LoadRouterConfig loads, normalizes, and validates the router tuning file.
func (l *Loader) LoadRouterConfig(path string) (*RouterConfig, error) {
	data, err := l.fileReader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read router config: %w", err)
	}
	var rc RouterConfig
	if err := decode(path, data, &rc); err != nil {
		return nil, err
	}
	rc.Normalize()
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid router config %s: %w", path, err)
	}
	return &rc, nil
}

// LoadRPCConfig loads and normalizes the server config file.
func (l *Loader) LoadRPCConfig(path string) (*RPCConfig, error) {
	data, err := l.fileReader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rpc config: %w", err)
	}
	var rc RPCConfig
	if err := decode(path, data, &rc); err != nil {
		return nil, err
	}
	rc.Normalize()
	return &rc, nil
}

// FetchRegistryFile downloads a remote registry file (git, http, s3; any
// go-getter source) into dst and returns the local path.
func FetchRegistryFile(ctx context.Context, src, dst string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
			&getter.FileDetector{},
		},
	}
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("failed to download registry from %s: %w", src, err)
	}
	return filepath.Clean(dst), nil
}

// BuildRegistry converts the decoded registry file into registry types.
func BuildRegistry(rf *RegistryFile) (*registry.Registry, error) {
	chains := make([]registry.Chain, 0, len(rf.Chains))
	for _, cc := range rf.Chains {
		kind, err := parseKind(cc.Kind)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", cc.Name, err)
		}
		chains = append(chains, registry.Chain{
			ID:             models.ChainID(cc.ID),
			Name:           cc.Name,
			Kind:           kind,
			NativeSymbol:   cc.NativeSymbol,
			NativeDecimals: cc.NativeDecimals,
			WrappedNative:  cc.WrappedNative,
			Bech32Prefix:   cc.Bech32Prefix,
			Metadata:       cc.Metadata,
			ProviderIDs:    cc.Providers,
		})
	}

	tokens := make([]registry.Token, 0, len(rf.Tokens))
	for _, tc := range rf.Tokens {
		tokens = append(tokens, registry.Token{
			Ref:      models.TokenRef{Chain: models.ChainID(tc.Chain), Address: tc.Address},
			Symbol:   tc.Symbol,
			Decimals: tc.Decimals,
			Category: parseCategory(tc.Category),
		})
	}

	bridges := make([]registry.BridgeToken, 0, len(rf.BridgeTokens))
	for _, bc := range rf.BridgeTokens {
		bridges = append(bridges, registry.BridgeToken{
			Symbol:   bc.Symbol,
			Source:   models.TokenRef{Chain: models.ChainID(bc.SourceChain), Address: bc.SourceAddress},
			Dest:     models.TokenRef{Chain: models.ChainID(bc.DestChain), Address: bc.DestAddress},
			Priority: bc.Priority,
		})
	}

	return registry.New(chains, tokens, bridges)
}

func parseKind(s string) (models.ChainKind, error) {
	switch models.ChainKind(strings.ToLower(s)) {
	case models.KindEVM:
		return models.KindEVM, nil
	case models.KindSolana:
		return models.KindSolana, nil
	case models.KindCosmos:
		return models.KindCosmos, nil
	case models.KindSui:
		return models.KindSui, nil
	case models.KindTON:
		return models.KindTON, nil
	case models.KindBitcoin:
		return models.KindBitcoin, nil
	case models.KindOther, "":
		return models.KindOther, nil
	}
	return "", fmt.Errorf("unknown chain kind %q", s)
}

func parseCategory(s string) models.TokenCategory {
	switch models.TokenCategory(strings.ToLower(s)) {
	case models.CategoryNative:
		return models.CategoryNative
	case models.CategoryStable:
		return models.CategoryStable
	case models.CategoryBluechip:
		return models.CategoryBluechip
	default:
		return models.CategoryAlt
	}
}
