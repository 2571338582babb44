// internal/wallet/wallet.go
package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"

	"property-delivery-api-server/config"
)

// Populate stores the service identity from cfg in w unless it is already there.
func Populate(w *gateway.Wallet, cfg config.FabricConfig) error {
	if w.Exists(cfg.UserName) {
		return nil
	}

	cert, err := os.ReadFile(filepath.Clean(cfg.UserCertPath))
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	keyPath, err := findPrivateKey(cfg.UserKeyDir)
	if err != nil {
		return err
	}
	key, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}

	identity := gateway.NewX509Identity(MSPID(cfg.OrgName), string(cert), string(key))
	return w.Put(cfg.UserName, identity)
}

// MSPID follows the <Org>MSP naming of the network's membership providers.
func MSPID(orgName string) string {
	return orgName + "MSP"
}

// findPrivateKey returns the first regular file under dir; the keystore holds a
// single key with a generated name.
func findPrivateKey(dir string) (string, error) {
	keyPath := ""
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if keyPath != "" {
			return filepath.SkipDir
		}
		if !info.IsDir() {
			keyPath = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if keyPath == "" {
		return "", fmt.Errorf("no private key found in directory %s", dir)
	}
	return keyPath, nil
}
