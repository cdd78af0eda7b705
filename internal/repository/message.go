package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/model"
)

const messageCols = `id, sender_id, receiver_id, text, image, seen, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.Seen, &m.CreatedAt)
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (`+messageCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.Image, m.Seen, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Insert: %w", err)
	}
	return nil
}

func (r *MessageRepository) query(ctx context.Context, op, sql string, args ...any) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.%s query: %w", op, err)
	}
	defer rows.Close()
	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.%s rows: %w", op, err)
	}
	return msgs, nil
}

func (r *MessageRepository) FindBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.FindBetween", time.Now())()
	return r.query(ctx, "FindBetween",
		`SELECT `+messageCols+` FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at, id`, a, b)
}

func (r *MessageRepository) FindUnseen(ctx context.Context, senderID, receiverID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.FindUnseen", time.Now())()
	return r.query(ctx, "FindUnseen",
		`SELECT `+messageCols+` FROM messages
		 WHERE sender_id = $1 AND receiver_id = $2 AND seen = false
		 ORDER BY created_at, id`, senderID, receiverID)
}

// UpdateSeen: повторный вызов и чужой/несуществующий id — не ошибка, просто 0 строк.
func (r *MessageRepository) UpdateSeen(ctx context.Context, id, receiverID string) error {
	defer logger.DeferLogDuration("msg.UpdateSeen", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET seen = true WHERE id = $1 AND receiver_id = $2 AND seen = false`,
		id, receiverID,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateSeen: %w", err)
	}
	return nil
}

func (r *MessageRepository) UpdateSeenBulk(ctx context.Context, senderID, receiverID string) error {
	defer logger.DeferLogDuration("msg.UpdateSeenBulk", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET seen = true WHERE sender_id = $1 AND receiver_id = $2 AND seen = false`,
		senderID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateSeenBulk: %w", err)
	}
	return nil
}
