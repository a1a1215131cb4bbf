package main

import (
	"fmt"
	"os"

	"petitionledger/config"
	"petitionledger/contract"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("petitionledger")

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Error reading chaincode configuration: " + err.Error())
	}
	flogging.ActivateSpec(cfg.LogSpec)

	rules := cfg.Rules
	if cfg.RulesFile != "" {
		loaded, err := config.LoadRulesFile(cfg.RulesFile, rules)
		if err != nil {
			panic("Error loading petition rules: " + err.Error())
		}
		rules = loaded
	}
	if err := rules.Validate(); err != nil {
		panic("Invalid petition rules: " + err.Error())
	}

	ids, err := contract.IDGeneratorForStrategy(cfg.IDStrategy)
	if err != nil {
		panic("Error selecting petition id strategy: " + err.Error())
	}

	ruleset := contract.Ruleset{
		WithdrawWindow:   rules.WithdrawWindow(),
		MaxMessageLength: rules.MaxMessageLength,
		AllowSelfSign:    rules.AllowSelfSign,
		AllowResign:      rules.AllowResign,
	}
	cc, err := contractapi.NewChaincode(contract.NewPetitionSmartContract(ruleset, ids))
	if err != nil {
		panic("Error creating PetitionSmartContract: " + err.Error())
	}

	if cfg.ServerAddress == "" {
		if err := cc.Start(); err != nil {
			panic("Error starting chaincode: " + err.Error())
		}
		return
	}

	tls, err := tlsProperties(cfg)
	if err != nil {
		panic("Error loading chaincode TLS material: " + err.Error())
	}
	server := &shim.ChaincodeServer{
		CCID:     cfg.ChaincodeID,
		Address:  cfg.ServerAddress,
		CC:       cc,
		TLSProps: tls,
	}
	logger.Infof("Starting petition chaincode server %s on %s", cfg.ChaincodeID, cfg.ServerAddress)
	if err := server.Start(); err != nil {
		panic("Error starting chaincode server: " + err.Error())
	}
}

func tlsProperties(cfg config.Config) (shim.TLSProperties, error) {
	if cfg.TLSDisabled {
		return shim.TLSProperties{Disabled: true}, nil
	}
	key, err := os.ReadFile(cfg.TLSKeyFile)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("read key %q: %w", cfg.TLSKeyFile, err)
	}
	cert, err := os.ReadFile(cfg.TLSCertFile)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("read cert %q: %w", cfg.TLSCertFile, err)
	}
	props := shim.TLSProperties{Key: key, Cert: cert}
	if cfg.TLSClientCAFile != "" {
		ca, err := os.ReadFile(cfg.TLSClientCAFile)
		if err != nil {
			return shim.TLSProperties{}, fmt.Errorf("read client CA %q: %w", cfg.TLSClientCAFile, err)
		}
		props.ClientCACerts = ca
	}
	return props, nil
}
