package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/models"
)

const contactCols = "id, workspace_id, name, email, phone, source, created_at, updated_at"

func scanContact(sc scanner) (models.Contact, error) {
	var c models.Contact
	err := sc.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Email, &c.Phone, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateContact(ctx context.Context, c *models.Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return s.q.QueryRow(ctx, `
INSERT INTO contacts(id, workspace_id, name, email, phone, source)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`,
		c.ID, c.WorkspaceID, c.Name, c.Email, c.Phone, c.Source,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (s *Store) UpdateContact(ctx context.Context, c *models.Contact) error {
	err := s.q.QueryRow(ctx, `
UPDATE contacts
SET name = $3, email = $4, phone = $5, source = $6, updated_at = now()
WHERE id = $1 AND workspace_id = $2
RETURNING updated_at`,
		c.ID, c.WorkspaceID, c.Name, c.Email, c.Phone, c.Source,
	).Scan(&c.UpdatedAt)
	return notFound(err, "contact %s", c.ID)
}

func (s *Store) GetContact(ctx context.Context, workspaceID, id uuid.UUID) (models.Contact, error) {
	c, err := scanContact(s.q.QueryRow(ctx, `
SELECT `+contactCols+` FROM contacts WHERE workspace_id = $1 AND id = $2`, workspaceID, id))
	if err != nil {
		return models.Contact{}, notFound(err, "contact %s", id)
	}
	return c, nil
}

func (s *Store) FindContactByEmail(ctx context.Context, workspaceID uuid.UUID, email string) (models.Contact, error) {
	if email == "" {
		return models.Contact{}, core.NotFoundf("contact by email")
	}
	c, err := scanContact(s.q.QueryRow(ctx, `
SELECT `+contactCols+` FROM contacts
WHERE workspace_id = $1 AND lower(email) = lower($2)
ORDER BY created_at
LIMIT 1`, workspaceID, email))
	if err != nil {
		return models.Contact{}, notFound(err, "contact %q", email)
	}
	return c, nil
}

func (s *Store) FindContactByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (models.Contact, error) {
	if phone == "" {
		return models.Contact{}, core.NotFoundf("contact by phone")
	}
	c, err := scanContact(s.q.QueryRow(ctx, `
SELECT `+contactCols+` FROM contacts
WHERE workspace_id = $1 AND phone = $2
ORDER BY created_at
LIMIT 1`, workspaceID, phone))
	if err != nil {
		return models.Contact{}, notFound(err, "contact %q", phone)
	}
	return c, nil
}

const conversationCols = "id, workspace_id, contact_id, status, automation_paused, created_at, updated_at"

func scanConversation(sc scanner) (models.Conversation, error) {
	var c models.Conversation
	err := sc.Scan(&c.ID, &c.WorkspaceID, &c.ContactID, &c.Status, &c.AutomationPaused, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetOrCreateConversation inserts first so two racing callers both land on
// the row protected by the (workspace_id, contact_id) unique constraint.
func (s *Store) GetOrCreateConversation(ctx context.Context, workspaceID, contactID uuid.UUID) (models.Conversation, error) {
	_, err := s.q.Exec(ctx, `
INSERT INTO conversations(id, workspace_id, contact_id, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (workspace_id, contact_id) DO NOTHING`,
		uuid.New(), workspaceID, contactID, models.ConversationOpen)
	if err != nil {
		return models.Conversation{}, err
	}
	c, err := scanConversation(s.q.QueryRow(ctx, `
SELECT `+conversationCols+` FROM conversations
WHERE workspace_id = $1 AND contact_id = $2`, workspaceID, contactID))
	if err != nil {
		return models.Conversation{}, notFound(err, "conversation for contact %s", contactID)
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, workspaceID, id uuid.UUID) (models.Conversation, error) {
	c, err := scanConversation(s.q.QueryRow(ctx, `
SELECT `+conversationCols+` FROM conversations WHERE workspace_id = $1 AND id = $2`, workspaceID, id))
	if err != nil {
		return models.Conversation{}, notFound(err, "conversation %s", id)
	}
	return c, nil
}

func (s *Store) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	err := s.q.QueryRow(ctx, `
UPDATE conversations
SET status = $3, automation_paused = $4, updated_at = now()
WHERE id = $1 AND workspace_id = $2
RETURNING updated_at`,
		c.ID, c.WorkspaceID, c.Status, c.AutomationPaused,
	).Scan(&c.UpdatedAt)
	return notFound(err, "conversation %s", c.ID)
}

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	meta := m.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return s.q.QueryRow(ctx, `
INSERT INTO messages(id, workspace_id, conversation_id, direction, channel, content, meta)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`,
		m.ID, m.WorkspaceID, m.ConversationID, m.Direction, m.Channel, m.Content, meta,
	).Scan(&m.CreatedAt)
}

// ListMessages orders by id: message IDs are ULIDs, so lexical order is
// append order.
func (s *Store) ListMessages(ctx context.Context, workspaceID, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, workspace_id, conversation_id, direction, channel, content, meta, created_at
FROM messages
WHERE workspace_id = $1 AND conversation_id = $2
ORDER BY id`, workspaceID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.ConversationID, &m.Direction, &m.Channel, &m.Content, &m.Meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
