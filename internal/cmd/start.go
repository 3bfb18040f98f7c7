package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var startPairURI string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the signing relay",
	Long: `Start the signing relay in the foreground.

This will:
- Unlock the relay client identity and connect to the signaling relay
- Load persisted sessions
- Serve session proposals and wallet requests until stopped`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runRelay(startPairURI)
	},
}

// runRelay runs the relay until SIGINT or SIGTERM. A non-empty pairURI is
// paired once the signaling channel is up.
func runRelay(pairURI string) {
	logger.Info("Starting signing relay...", "cli")

	// Ensure the executable path is absolute for Windows compatibility
	exePath, err := filepath.Abs(os.Args[0])
	if err != nil {
		fail(fmt.Sprintf("Failed to get absolute path: %v", err))
	}
	logger.Info(fmt.Sprintf("Starting relay from: %s", exePath), "cli")

	// Initialize PID manager
	pidManager, err := utils.NewPIDManager(config)
	if err != nil {
		fail(fmt.Sprintf("Failed to create PID manager: %v", err))
	}

	// Check if another instance is already running
	if existingPID, err := pidManager.ReadPID(); err == nil {
		if pidManager.IsProcessRunning(existingPID) {
			fmt.Println("Use 'signing-relay stop' to stop the existing instance first")
			fail(fmt.Sprintf("Another instance is already running with PID: %d", existingPID))
		}
		// Clean up stale PID file
		pidManager.RemovePIDFile()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stack, err := buildRelayStack(ctx)
	if err != nil {
		fail(err.Error())
	}

	// Unlock the current wallet before confirmation prompts own stdin
	if w, err := stack.resolver.CurrentWallet(ctx); err != nil {
		logger.Warn(fmt.Sprintf("No current wallet unlocked: %v", err), "cli")
		fmt.Printf("Warning: no current wallet available (%v)\n", err)
	} else {
		logger.Info(fmt.Sprintf("Serving account %s", w.Address()), "cli")
	}

	// Wallets behind persisted sessions are unlocked now too. Once the relay
	// runs, stdin belongs to confirmations and locked wallets stay locked.
	var accounts []string
	for _, record := range stack.store.ListAll() {
		accounts = append(accounts, record.Account)
	}
	for account, err := range stack.resolver.UnlockAccounts(ctx, accounts) {
		logger.Warn(fmt.Sprintf("Account %s of a stored session stays locked: %v", account, err), "cli")
		fmt.Printf("Warning: account %s stays locked (%v)\n", account, err)
	}
	stack.resolver.StopPrompting()

	logger.Info(fmt.Sprintf("Log level: %s", logger.GetLogLevel()), "cli")

	// Initialize monitoring server
	monitoringServer := utils.NewMonitoringServer(config, logger, stack.registry)
	if err := monitoringServer.Start(); err != nil {
		stack.Close()
		fail(fmt.Sprintf("Failed to start monitoring server: %v", err))
	}
	logger.Info(fmt.Sprintf("Monitoring server started on port %s", monitoringServer.GetPort()), "cli")

	// Write current PID to file
	currentPID := os.Getpid()
	if err := pidManager.WritePID(currentPID); err != nil {
		monitoringServer.Stop()
		stack.Close()
		fail(fmt.Sprintf("Failed to write PID file: %v", err))
	}
	logger.Info(fmt.Sprintf("Relay started with PID: %d", currentPID), "cli")

	runErr := make(chan error, 1)
	go func() {
		runErr <- stack.service.Run(ctx)
	}()

	if pairURI != "" {
		go func() {
			info, err := stack.service.Pair(ctx, pairURI)
			if err != nil {
				logger.Error(fmt.Sprintf("Pairing failed: %v", err), "cli")
				fmt.Printf("Pairing failed: %v\n", err)
				return
			}
			logger.Info(fmt.Sprintf("Paired with topic %s", info.Topic), "cli")
			fmt.Printf("Paired. Topic: %s\n", info.Topic)
		}()
	}

	fmt.Printf("Signing relay is running (%d sessions). Press Ctrl+C to stop.\n", len(stack.service.Sessions()))

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Create cleanup function that we'll call from multiple places
	cleanup := func() {
		logger.Info("Shutdown signal received, stopping relay...", "cli")

		stack.Close()
		cancel()

		// Stop monitoring server
		if err := monitoringServer.Stop(); err != nil {
			logger.Error(fmt.Sprintf("Error stopping monitoring server: %v", err), "cli")
		}

		// Clean up PID file
		if err := pidManager.RemovePIDFile(); err != nil {
			logger.Warn(fmt.Sprintf("Failed to remove PID file: %v", err), "cli")
		}

		logger.Info("Signing relay stopped successfully", "cli")
	}

	select {
	case <-sigChan:
		cleanup()
	case err := <-runErr:
		cleanup()
		if err != nil && !errors.Is(err, context.Canceled) {
			fail(fmt.Sprintf("Relay stopped: %v", err))
		}
	}
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVar(&startPairURI, "pair", "", "pairing URI to pair with once connected")
}
