package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rede-mlm/internal/bonus"
	"rede-mlm/internal/bot"
	"rede-mlm/internal/config"
	"rede-mlm/internal/member"
	"rede-mlm/internal/metrics"
	"rede-mlm/internal/migrations"
	"rede-mlm/internal/network"
	"rede-mlm/internal/notify"
	"rede-mlm/internal/order"
	"rede-mlm/internal/placement"
	"rede-mlm/internal/scheduler"
	"rede-mlm/internal/store"
	"rede-mlm/internal/webhook"
	"rede-mlm/internal/withdrawal"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	// Инициализация логгера
	logger, err := initLogger()
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск приложения Rede MLM")

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("ошибка загрузки конфигурации", zap.Error(err))
	}

	// Инициализация базы данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer store.Close()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Строка bonus_config должна существовать после миграций
	if _, err := store.BonusConfig().Get(context.Background()); err != nil {
		logger.Fatal("ошибка чтения настроек начислений", zap.Error(err))
	}

	// Инициализация Telegram бота (опционально)
	var botAPI *tgbotapi.BotAPI
	if cfg.Telegram.BotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal("ошибка инициализации Telegram бота", zap.Error(err))
		}

		logger.Info("Telegram бот инициализирован",
			zap.String("username", botAPI.Self.UserName),
			zap.Int64("id", botAPI.Self.ID))
	}

	notifier := notify.New(botAPI, cfg.Telegram.AdminChatID, logger)

	// Инициализация метрик
	metricsSystem := metrics.New(logger)
	metricsHandler := metrics.NewHandler(logger)

	// Восстановление резерва выводов: gauge не переживает перезапуск
	if reserved, err := store.Withdrawal().SumReservedAll(context.Background()); err != nil {
		logger.Warn("ошибка восстановления метрики резервов", zap.Error(err))
	} else {
		metricsSystem.SetWithdrawalReserved(reserved)
	}

	// Инициализация сервисов
	networkService := network.NewService(store.Member(), logger)
	bonusService := bonus.NewService(store.Order(), store.Ledger(), store.BonusConfig(), networkService, metricsSystem, logger)
	placementService := placement.NewService(store.Member(), store.BonusConfig(), metricsSystem, logger)
	memberService := member.NewService(store.Member(), store.Ledger(), store.BonusConfig(),
		placementService, networkService, logger)
	orderService := order.NewService(store.Order(), store.Member(), store.BonusConfig(), bonusService, notifier, metricsSystem, logger)
	withdrawalService := withdrawal.NewService(store.Withdrawal(), store.Member(), store.BonusConfig(), notifier, metricsSystem, logger)

	// Инициализация планировщика задач
	taskScheduler := scheduler.NewScheduler(logger)

	// Автоотмена неоплаченных заказов по TTL
	staleOrdersJob := scheduler.NewStaleOrdersJob(store.Order(),
		time.Duration(cfg.Bonus.PendingOrderTTL)*time.Hour, logger)
	taskScheduler.AddJob(staleOrdersJob)

	// Создание канала для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запуск HTTP сервера для метрик и webhook'ов
	go startHTTPServer(ctx, cfg.App.Port, metricsHandler, orderService, cfg.Gateway.WebhookSecret, logger)

	// Запуск планировщика задач (каждый час)
	go taskScheduler.Start(ctx, time.Hour)

	// Запуск обработки команд администратора
	if botAPI != nil {
		adminHandler := bot.NewAdminHandler(botAPI, memberService, withdrawalService,
			cfg.Telegram.AdminChatID, cfg.Bonus.DefaultSponsorID, logger)
		go handleUpdates(ctx, botAPI, adminHandler, logger)
	}

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)),
	)

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")

	if botAPI != nil {
		botAPI.StopReceivingUpdates()
	}

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер
func initLogger() (*zap.Logger, error) {
	// В продакшене можно использовать JSON формат
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout", "logs/app.log"}
	config.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return config.Build()
}

// handleUpdates обрабатывает обновления от Telegram
func handleUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, handler *bot.AdminHandler, logger *zap.Logger) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}

			go func(update tgbotapi.Update) {
				if err := handler.HandleUpdate(ctx, update); err != nil {
					logger.Error("ошибка обработки обновления",
						zap.Int64("chat_id", update.Message.Chat.ID),
						zap.Error(err))
				}
			}(update)

		case <-ctx.Done():
			logger.Info("остановка обработки обновлений")
			return
		}
	}
}

// startHTTPServer запускает HTTP сервер для метрик и webhook'ов
func startHTTPServer(ctx context.Context, port int, handler *metrics.Handler, orderService *order.Service, webhookSecret string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler.MetricsHandler())
	mux.HandleFunc("/health", handler.HealthHandler())

	// Webhook endpoint платежного шлюза
	webhookHandler := webhook.NewGatewayWebhookHandler(orderService, webhookSecret, logger)
	mux.HandleFunc("/webhook/gateway", webhookHandler.HandleWebhook)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("HTTP сервер запущен", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
		}
	}()

	// Ожидание сигнала завершения
	<-ctx.Done()

	// Graceful shutdown HTTP сервера
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("HTTP сервер остановлен")
}
