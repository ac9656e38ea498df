//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/command"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/web_mon/test/fixtures"
)

const redirectURL = "about:blank"

// installedRules reads the rules file the way a second process would.
func installedRules(path string) []domain.BlockingRule {
	rules, err := infra.NewFileRuleEngine(path).DynamicRules(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return rules
}

func ruleIDs(rules []domain.BlockingRule) []int {
	ids := make([]int, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

var _ = Describe("Scheduled blocking", func() {
	var (
		tmpDir     string
		socketPath string
		rulesPath  string
		key        []byte

		daemonStore *infra.SQLCipherStore
		uiStore     *infra.SQLCipherStore
		ui          *usecase.Repository
		client      *command.Client

		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "wmi")
		Expect(err).NotTo(HaveOccurred())
		socketPath = filepath.Join(tmpDir, "d.sock")
		rulesPath = filepath.Join(tmpDir, infra.RulesFileName)

		key, err = infra.EnsureKey(infra.NewFileKeyProvider(tmpDir))
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()

		// Daemon side
		daemonStore, err = infra.OpenSQLCipherStore(tmpDir, key, logger)
		Expect(err).NotTo(HaveOccurred())
		repo := usecase.NewRepository(daemonStore, nil, logger)
		pm := infra.NewProcessManager()
		cfg := daemon.DefaultConfig()
		cfg.SocketPath = socketPath
		cfg.StoreWatchInterval = 50 * time.Millisecond
		d := daemon.New(cfg,
			usecase.NewSynchronizer(repo, infra.NewFileRuleEngine(rulesPath), redirectURL, logger),
			usecase.NewCleaner(repo, logger),
			infra.NewTickerAlarms(),
			infra.NewFileRegistry(tmpDir, "", pm),
			pm, repo, daemonStore, logger)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- d.Run(ctx) }()

		// UI side, a separate store handle as another process would hold
		client = command.NewClient(socketPath)
		_, err = daemon.WaitReady(context.Background(), client, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		uiStore, err = infra.OpenSQLCipherStore(tmpDir, key, logger)
		Expect(err).NotTo(HaveOccurred())
		ui = usecase.NewRepository(uiStore, client, logger)
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
		uiStore.Close()
		daemonStore.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("adding a schedule", func() {
		Context("when it covers today all day", func() {
			It("installs the subdomain and bare-domain rules", func() {
				today := fixtures.Date(0)
				_, err := ui.Add(context.Background(), fixtures.AllDay("youtube.com", today, today))
				Expect(err).NotTo(HaveOccurred())

				rules := installedRules(rulesPath)
				Expect(ruleIDs(rules)).To(ConsistOf(1, 1001))
				Expect(policy.MatchRules(rules, "https://youtube.com/", domain.ResourceTypeMainFrame)).NotTo(BeNil())
				Expect(policy.MatchRules(rules, "https://www.youtube.com/watch", domain.ResourceTypeMainFrame)).NotTo(BeNil())
				Expect(policy.MatchRules(rules, "https://example.com/", domain.ResourceTypeMainFrame)).To(BeNil())
			})
		})

		Context("when the website already has a schedule", func() {
			It("rejects the duplicate and keeps one", func() {
				today := fixtures.Date(0)
				_, err := ui.Add(context.Background(), fixtures.AllDay("youtube.com", today, fixtures.Date(2)))
				Expect(err).NotTo(HaveOccurred())

				_, err = ui.Add(context.Background(), fixtures.AllDay("www.youtube.com", fixtures.Date(1), fixtures.Date(3)))
				Expect(domain.IsValidation(err)).To(BeTrue())
				Expect(err.Error()).To(Equal(policy.ReasonDuplicate))

				schedules, err := ui.List(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(schedules).To(HaveLen(1))
			})
		})

		Context("when the window has zero length", func() {
			It("rejects it without writing", func() {
				today := fixtures.Date(0)
				_, err := ui.Add(context.Background(), fixtures.Window("reddit.com", today, "10:00", "10:00"))
				Expect(domain.IsValidation(err)).To(BeTrue())
				Expect(err.Error()).To(Equal(policy.ReasonEndBeforeStart))

				schedules, err := ui.List(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(schedules).To(BeEmpty())
			})
		})
	})

	Describe("completed schedules", func() {
		It("are pruned on resync and contribute no rules", func() {
			yesterday := fixtures.Date(-1)
			_, err := ui.Add(context.Background(), fixtures.AllDay("reddit.com", yesterday, yesterday))
			Expect(err).NotTo(HaveOccurred())

			schedules, err := ui.List(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(schedules).To(BeEmpty())
			Expect(installedRules(rulesPath)).To(BeEmpty())
		})

		It("are reported to other processes watching the store", func() {
			changes := make(chan []domain.Schedule, 4)
			unsubscribe := ui.OnChange(func(s []domain.Schedule) { changes <- s })
			defer unsubscribe()

			// Write without notifying the daemon; its store watcher picks it up.
			silent := usecase.NewRepository(uiStore, nil, zap.NewNop())
			yesterday := fixtures.Date(-1)
			_, err := silent.Add(context.Background(), fixtures.AllDay("reddit.com", yesterday, yesterday))
			Expect(err).NotTo(HaveOccurred())
			Eventually(changes).Should(Receive(HaveLen(1)))

			ctx, stop := context.WithCancel(context.Background())
			defer stop()
			go uiStore.Watch(ctx, 20*time.Millisecond)

			Eventually(changes, 5*time.Second).Should(Receive(BeEmpty()))
		})
	})

	Describe("removing a schedule", func() {
		It("uninstalls its rules", func() {
			today := fixtures.Date(0)
			s, err := ui.Add(context.Background(), fixtures.AllDay("youtube.com", today, today))
			Expect(err).NotTo(HaveOccurred())
			Expect(installedRules(rulesPath)).To(HaveLen(2))

			Expect(ui.Remove(context.Background(), s.ID)).To(Succeed())
			Expect(installedRules(rulesPath)).To(BeEmpty())
		})
	})

	Describe("writes made without a resync request", func() {
		It("are applied by the daemon's store watcher", func() {
			silent := usecase.NewRepository(uiStore, nil, zap.NewNop())
			today := fixtures.Date(0)
			_, err := silent.Add(context.Background(), fixtures.AllDay("news.ycombinator.com", today, today))
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() []int {
				return ruleIDs(installedRules(rulesPath))
			}, 5*time.Second, 50*time.Millisecond).Should(ConsistOf(1, 1001))
		})
	})

	Describe("daemon registry", func() {
		It("records the running daemon", func() {
			registry := infra.NewFileRegistry(tmpDir, "", infra.NewProcessManager())
			alive, err := registry.IsDaemonAlive()
			Expect(err).NotTo(HaveOccurred())
			Expect(alive).To(BeTrue())

			entry, err := registry.GetAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.SocketPath).To(Equal(socketPath))
		})
	})
})
