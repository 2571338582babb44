// internal/blockchain/setup.go
package blockchain

import (
	"fmt"
	"os"
	"path/filepath"

	fabconfig "github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/fabsdk"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/wallet"
)

// FabricSetup holds the gateway connection the ledger mirror submits through.
type FabricSetup struct {
	Gateway  *gateway.Gateway
	Contract *gateway.Contract
	SDK      *fabsdk.FabricSDK
	Wallet   *gateway.Wallet
}

// Initialize populates the wallet with the service identity and connects to the
// delivery chaincode on cfg.ChannelName.
func Initialize(cfg config.FabricConfig) (*FabricSetup, error) {
	os.Setenv("DISCOVERY_AS_LOCALHOST", "true")

	fsWallet, err := gateway.NewFileSystemWallet(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	err = wallet.Populate(fsWallet, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to populate wallet for %s: %w", cfg.UserName, err)
	}

	sdk, err := fabsdk.New(fabconfig.FromFile(filepath.Clean(cfg.ConnectionProfile)))
	if err != nil {
		return nil, fmt.Errorf("failed to create fabsdk instance: %w", err)
	}

	gw, err := gateway.Connect(
		gateway.WithSDK(sdk),
		gateway.WithIdentity(fsWallet, cfg.UserName),
	)
	if err != nil {
		sdk.Close()
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	network, err := gw.GetNetwork(cfg.ChannelName)
	if err != nil {
		gw.Close()
		sdk.Close()
		return nil, fmt.Errorf("failed to get network: %w", err)
	}

	return &FabricSetup{
		Gateway:  gw,
		Contract: network.GetContract(cfg.ChaincodeName),
		SDK:      sdk,
		Wallet:   fsWallet,
	}, nil
}

func (fs *FabricSetup) Close() {
	fs.Gateway.Close()
	fs.SDK.Close()
}
