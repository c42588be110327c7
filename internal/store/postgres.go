package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rede-mlm/internal/config"
	"rede-mlm/internal/network"
	"rede-mlm/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store представляет интерфейс для работы с базой данных
type Store interface {
	Member() MemberRepository
	Order() OrderRepository
	Ledger() LedgerRepository
	Withdrawal() WithdrawalRepository
	BonusConfig() BonusConfigRepository
	DB() *pgxpool.Pool
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db          *pgxpool.Pool
	logger      *zap.Logger
	member      MemberRepository
	order       OrderRepository
	ledger      LedgerRepository
	withdrawal  WithdrawalRepository
	bonusConfig BonusConfigRepository
}

// MemberRepository интерфейс для работы с участниками сети
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id int64) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	GetByReferralCode(ctx context.Context, referralCode string) (*models.Member, error)
	GetDirects(ctx context.Context, sponsorID int64) ([]*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	GenerateReferralCode(ctx context.Context) (string, error)
	ApproveWithPlacement(ctx context.Context, memberID, defaultSponsorID int64) (int64, error)
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	s := &store{
		db:     db,
		logger: logger,
	}

	// Инициализация репозиториев
	s.member = NewMemberRepository(db, logger)
	s.order = NewOrderRepository(db, logger)
	s.ledger = NewLedgerRepository(db, logger)
	s.withdrawal = NewWithdrawalRepository(db, logger)
	s.bonusConfig = NewBonusConfigRepository(db, logger)

	return s, nil
}

// Member возвращает репозиторий участников
func (s *store) Member() MemberRepository {
	return s.member
}

// Order возвращает репозиторий заказов
func (s *store) Order() OrderRepository {
	return s.order
}

// Ledger возвращает репозиторий журнала движений
func (s *store) Ledger() LedgerRepository {
	return s.ledger
}

// Withdrawal возвращает репозиторий заявок на вывод
func (s *store) Withdrawal() WithdrawalRepository {
	return s.withdrawal
}

// BonusConfig возвращает репозиторий бонусной таблицы
func (s *store) BonusConfig() BonusConfigRepository {
	return s.bonusConfig
}

// DB возвращает подключение к базе данных
func (s *store) DB() *pgxpool.Pool {
	return s.db
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}

const memberColumns = `id, name, email, role, referred_by, sponsor_id, balance, referral_code, approved_at, created_at, updated_at`

// memberRepository реализует MemberRepository
type memberRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewMemberRepository создает новый репозиторий участников
func NewMemberRepository(db *pgxpool.Pool, logger *zap.Logger) MemberRepository {
	return &memberRepository{
		db:     db,
		logger: logger,
	}
}

func scanMember(row pgx.Row) (*models.Member, error) {
	member := &models.Member{}
	err := row.Scan(
		&member.ID, &member.Name, &member.Email, &member.Role, &member.ReferredBy,
		&member.SponsorID, &member.Balance, &member.ReferralCode, &member.ApprovedAt,
		&member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}

// Create создает нового участника. Ссылка referred_by фиксирует
// пригласившего навсегда; окончательный спонсор (sponsor_id) остается
// пустым до подтверждения.
func (r *memberRepository) Create(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (name, email, role, referred_by, balance, referral_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	member.CreatedAt = now
	member.UpdatedAt = now

	// Значения по умолчанию
	if member.Role == "" {
		member.Role = models.RoleMember
	}

	err := r.db.QueryRow(ctx, query,
		member.Name, member.Email, member.Role, member.ReferredBy,
		member.Balance, member.ReferralCode, member.CreatedAt, member.UpdatedAt,
	).Scan(&member.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания участника: %w", err)
	}

	r.logger.Info("участник создан",
		zap.Int64("member_id", member.ID),
		zap.String("email", member.Email),
		zap.Int64p("referred_by", member.ReferredBy))

	return nil
}

// GetByID получает участника по ID
func (r *memberRepository) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	member, err := scanMember(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("участник с ID %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения участника по ID: %w", err)
	}

	return member, nil
}

// GetByEmail получает участника по email
func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email = $1`

	member, err := scanMember(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("участник с email %s: %w", email, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения участника по email: %w", err)
	}

	return member, nil
}

// GetByReferralCode получает участника по реферальному коду
func (r *memberRepository) GetByReferralCode(ctx context.Context, referralCode string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE referral_code = $1`

	member, err := scanMember(r.db.QueryRow(ctx, query, referralCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("участник с реферальным кодом %s: %w", referralCode, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения участника по реферальному коду: %w", err)
	}

	return member, nil
}

// GetDirects получает прямых рефералов участника.
// Порядок строго по времени создания: от него зависят позиции размещения.
func (r *memberRepository) GetDirects(ctx context.Context, sponsorID int64) ([]*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE sponsor_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прямых рефералов: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника: %w", err)
		}
		members = append(members, member)
	}

	return members, nil
}

// Update обновляет профиль участника.
// Спонсор и баланс здесь намеренно не обновляются: спонсор фиксируется
// только через ApproveWithPlacement, баланс меняется только журнальными
// операциями.
func (r *memberRepository) Update(ctx context.Context, member *models.Member) error {
	query := `
		UPDATE members
		SET name = $2, email = $3, role = $4, referral_code = $5, updated_at = $6
		WHERE id = $1`

	member.UpdatedAt = time.Now()

	result, err := r.db.Exec(ctx, query,
		member.ID, member.Name, member.Email, member.Role, member.ReferralCode, member.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("ошибка обновления участника: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("участник с ID %d: %w", member.ID, models.ErrNotFound)
	}

	return nil
}

// GenerateReferralCode генерирует реферальный код на стороне базы
func (r *memberRepository) GenerateReferralCode(ctx context.Context) (string, error) {
	query := `SELECT generate_referral_code()`

	var code string
	err := r.db.QueryRow(ctx, query).Scan(&code)
	if err != nil {
		return "", fmt.Errorf("ошибка генерации реферального кода: %w", err)
	}

	return code, nil
}

// ApproveWithPlacement подтверждает участника и фиксирует его окончательного
// спонсора по правилу "первые два в подарок". Позиция считается по списку
// приглашенных предварительного спонсора через неизменную ссылку referred_by:
// сам подарок переписывает только sponsor_id, поэтому ранее подаренные
// участники не выпадают из списка и не сдвигают позиции следующих.
// Вся операция выполняется в одной транзакции: строка предварительного
// спонсора блокируется FOR UPDATE, поэтому два одновременных подтверждения
// под одним спонсором не могут получить одинаковую позицию.
func (r *memberRepository) ApproveWithPlacement(ctx context.Context, memberID, defaultSponsorID int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка открытия транзакции размещения: %w", err)
	}
	defer tx.Rollback(ctx)

	member, err := scanMember(tx.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("участник с ID %d: %w", memberID, models.ErrNotFound)
		}
		return 0, fmt.Errorf("ошибка получения участника для размещения: %w", err)
	}

	if member.IsApproved() {
		return 0, fmt.Errorf("участник %d уже подтвержден: %w", memberID, models.ErrInvalidState)
	}

	provisionalID := defaultSponsorID
	if member.ReferredBy != nil {
		provisionalID = *member.ReferredBy
	}

	// Сериализация по спонсору: все позиции под одним спонсором
	// вычисляются строго по очереди
	var lockedID int64
	err = tx.QueryRow(ctx, `SELECT id FROM members WHERE id = $1 FOR UPDATE`, provisionalID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("предварительный спонсор %d: %w", provisionalID, models.ErrNotFound)
		}
		return 0, fmt.Errorf("ошибка блокировки спонсора: %w", err)
	}

	// Зарегистрированный без реферального кода закрепляется за спонсором
	// по умолчанию и с этого момента тоже участвует в подсчете позиций
	if member.ReferredBy == nil {
		if _, err := tx.Exec(ctx,
			`UPDATE members SET referred_by = $2 WHERE id = $1`, memberID, provisionalID); err != nil {
			return 0, fmt.Errorf("ошибка закрепления пригласившего: %w", err)
		}
	}

	rows, err := tx.Query(ctx,
		`SELECT `+memberColumns+` FROM members WHERE referred_by = $1 ORDER BY created_at ASC, id ASC`, provisionalID)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения приглашенных спонсора: %w", err)
	}

	var directs []*models.Member
	for rows.Next() {
		direct, scanErr := scanMember(rows)
		if scanErr != nil {
			rows.Close()
			return 0, fmt.Errorf("ошибка сканирования прямого реферала: %w", scanErr)
		}
		directs = append(directs, direct)
	}
	rows.Close()

	finalSponsorID := network.GiftSponsor(provisionalID, directs, memberID)

	now := time.Now()
	result, err := tx.Exec(ctx,
		`UPDATE members SET sponsor_id = $2, approved_at = $3, updated_at = $3 WHERE id = $1`,
		memberID, finalSponsorID, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка фиксации спонсора: %w", err)
	}
	if result.RowsAffected() == 0 {
		return 0, fmt.Errorf("участник с ID %d: %w", memberID, models.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции размещения: %w", err)
	}

	r.logger.Info("размещение зафиксировано",
		zap.Int64("member_id", memberID),
		zap.Int64("provisional_sponsor_id", provisionalID),
		zap.Int64("final_sponsor_id", finalSponsorID))

	return finalSponsorID, nil
}
