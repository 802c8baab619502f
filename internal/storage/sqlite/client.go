package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT,
		content TEXT,
		version INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chapters_category ON chapters(category);

	CREATE TABLE IF NOT EXISTS chapter_chunks (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (chapter_id) REFERENCES chapters(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_chapter ON chapter_chunks(chapter_id);

	CREATE TABLE IF NOT EXISTS qa_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		chapter_id TEXT NOT NULL,
		question_text TEXT NOT NULL,
		question_type TEXT,
		answer_text TEXT,
		confidence REAL,
		evidence_count INTEGER,
		conflict_count INTEGER,
		integrated INTEGER DEFAULT 0,
		strategy TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_chapter ON qa_sessions(chapter_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON qa_sessions(created_at);

	CREATE TABLE IF NOT EXISTS qa_citations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT,
		credibility_tier TEXT,
		insertion_offset INTEGER,
		FOREIGN KEY (session_id) REFERENCES qa_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_citations_session ON qa_citations(session_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		issue_category TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES qa_sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		chapter_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		payload TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_chapter ON interactions(chapter_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);

	CREATE TABLE IF NOT EXISTS behavior_patterns (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		action_sequence TEXT NOT NULL,
		frequency INTEGER NOT NULL,
		confidence REAL NOT NULL,
		predicted_action TEXT,
		mined_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_chapter ON behavior_patterns(chapter_id);

	CREATE TABLE IF NOT EXISTS knowledge_gaps (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		gap_type TEXT NOT NULL,
		description TEXT,
		confidence REAL,
		priority_score REAL,
		auto_fillable INTEGER DEFAULT 0,
		filled_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gaps_chapter ON knowledge_gaps(chapter_id);

	CREATE TABLE IF NOT EXISTS citation_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		citation_type TEXT NOT NULL,
		strength REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON citation_edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON citation_edges(target_id);

	CREATE TABLE IF NOT EXISTS merge_records (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		user_id TEXT,
		original_excerpt TEXT,
		new_excerpt TEXT,
		resulting_text TEXT,
		strategy TEXT,
		confidence REAL,
		applied INTEGER DEFAULT 0,
		content_growth REAL,
		term_density REAL,
		readability REAL,
		completeness REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_merges_chapter ON merge_records(chapter_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

func (c *Client) UpsertChapter(ch *models.Chapter) error {
	now := time.Now().Unix()
	_, err := c.db.Exec(`
		INSERT INTO chapters (id, title, category, content, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			content = excluded.content,
			version = chapters.version + 1,
			updated_at = excluded.updated_at`,
		ch.ID, ch.Title, ch.Category, ch.Content, ch.Version, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chapter: %w", err)
	}
	return nil
}

func (c *Client) GetChapter(id string) (*models.Chapter, error) {
	row := c.db.QueryRow(`
		SELECT id, title, category, content, version, created_at, updated_at
		FROM chapters WHERE id = ?`, id)

	var ch models.Chapter
	var created, updated int64
	err := row.Scan(&ch.ID, &ch.Title, &ch.Category, &ch.Content, &ch.Version, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	ch.CreatedAt = time.Unix(created, 0)
	ch.UpdatedAt = time.Unix(updated, 0)
	return &ch, nil
}

func (c *Client) ListChapters() ([]models.Chapter, error) {
	rows, err := c.db.Query(`
		SELECT id, title, category, content, version, created_at, updated_at
		FROM chapters ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		var created, updated int64
		if err := rows.Scan(&ch.ID, &ch.Title, &ch.Category, &ch.Content, &ch.Version, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		ch.CreatedAt = time.Unix(created, 0)
		ch.UpdatedAt = time.Unix(updated, 0)
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func (c *Client) ReplaceChapterChunks(chapterID string, chunks []models.ChapterChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chapter_chunks WHERE chapter_id = ?`, chapterID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	for _, chunk := range chunks {
		_, err := tx.Exec(`
			INSERT INTO chapter_chunks (id, chapter_id, chunk_index, text, embedding_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.ChapterID, chunk.ChunkIndex, chunk.Text, chunk.EmbeddingID, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	return tx.Commit()
}

func (c *Client) InsertQASession(s *models.QASession) error {
	_, err := c.db.Exec(`
		INSERT INTO qa_sessions
		(id, user_id, chapter_id, question_text, question_type, answer_text, confidence,
		 evidence_count, conflict_count, integrated, strategy, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.ChapterID, s.QuestionText, s.QuestionType, s.AnswerText, s.Confidence,
		s.EvidenceCount, s.ConflictCount, boolToInt(s.Integrated), s.Strategy, s.LatencyMS,
		s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert qa session: %w", err)
	}
	return nil
}

func (c *Client) InsertQACitation(ct *models.QACitation) error {
	_, err := c.db.Exec(`
		INSERT INTO qa_citations (session_id, source_id, title, credibility_tier, insertion_offset)
		VALUES (?, ?, ?, ?, ?)`,
		ct.SessionID, ct.SourceID, ct.Title, ct.CredibilityTier, ct.InsertionOffset)
	if err != nil {
		return fmt.Errorf("failed to insert qa citation: %w", err)
	}
	return nil
}

func (c *Client) GetQASessions(chapterID string, limit int) ([]models.QASession, error) {
	rows, err := c.db.Query(`
		SELECT id, user_id, chapter_id, question_text, question_type, answer_text, confidence,
		       evidence_count, conflict_count, integrated, strategy, latency_ms, created_at
		FROM qa_sessions WHERE chapter_id = ? ORDER BY created_at DESC LIMIT ?`,
		chapterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query qa sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.QASession
	for rows.Next() {
		var s models.QASession
		var integrated int
		var created int64
		err := rows.Scan(&s.ID, &s.UserID, &s.ChapterID, &s.QuestionText, &s.QuestionType,
			&s.AnswerText, &s.Confidence, &s.EvidenceCount, &s.ConflictCount, &integrated,
			&s.Strategy, &s.LatencyMS, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan qa session: %w", err)
		}
		s.Integrated = integrated == 1
		s.CreatedAt = time.Unix(created, 0)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (c *Client) CountQASessionsSince(chapterID string, since time.Time) (int, float64, error) {
	row := c.db.QueryRow(`
		SELECT COUNT(*), COALESCE(AVG(confidence), 0)
		FROM qa_sessions WHERE chapter_id = ? AND created_at >= ?`,
		chapterID, since.Unix())

	var count int
	var avgConfidence float64
	if err := row.Scan(&count, &avgConfidence); err != nil {
		return 0, 0, fmt.Errorf("failed to count qa sessions: %w", err)
	}
	return count, avgConfidence, nil
}

func (c *Client) InsertFeedback(f *models.Feedback) error {
	_, err := c.db.Exec(`
		INSERT INTO feedback (session_id, helpful, issue_category, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.SessionID, boolToInt(f.Helpful), f.IssueCategory, f.Comment, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

func (c *Client) InsertInteraction(i *models.Interaction) error {
	_, err := c.db.Exec(`
		INSERT INTO interactions (id, user_id, chapter_id, action_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.ChapterID, i.ActionType, i.Payload, i.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

func (c *Client) PruneInteractions(before time.Time) (int64, error) {
	res, err := c.db.Exec(`DELETE FROM interactions WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune interactions: %w", err)
	}
	return res.RowsAffected()
}

func (c *Client) ReplaceBehaviorPatterns(chapterID string, patterns []models.BehaviorPattern) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM behavior_patterns WHERE chapter_id = ?`, chapterID); err != nil {
		return fmt.Errorf("failed to delete old patterns: %w", err)
	}

	for _, p := range patterns {
		_, err := tx.Exec(`
			INSERT INTO behavior_patterns (id, chapter_id, action_sequence, frequency, confidence, predicted_action, mined_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ChapterID, strings.Join(p.ActionSequence, ","), p.Frequency, p.Confidence,
			p.PredictedAction, p.MinedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert pattern: %w", err)
		}
	}

	return tx.Commit()
}

// InsertKnowledgeGap records a gap. Gap IDs are content-derived, so a
// re-detected gap inserts as a no-op rather than a duplicate; the return
// reports whether the gap was actually new.
func (c *Client) InsertKnowledgeGap(g *models.KnowledgeGap) (bool, error) {
	res, err := c.db.Exec(`
		INSERT INTO knowledge_gaps (id, chapter_id, gap_type, description, confidence, priority_score, auto_fillable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		g.ID, g.ChapterID, g.GapType, g.Description, g.Confidence, g.PriorityScore,
		boolToInt(g.AutoFillable), g.CreatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert knowledge gap: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return inserted > 0, nil
}

func (c *Client) MarkGapFilled(gapID string) error {
	_, err := c.db.Exec(`UPDATE knowledge_gaps SET filled_at = ? WHERE id = ?`,
		time.Now().Unix(), gapID)
	if err != nil {
		return fmt.Errorf("failed to mark gap filled: %w", err)
	}
	return nil
}

// InvalidateGaps removes all unfilled gaps for a chapter. Called when
// chapter content changes, since stale gaps no longer describe it.
func (c *Client) InvalidateGaps(chapterID string) error {
	_, err := c.db.Exec(`DELETE FROM knowledge_gaps WHERE chapter_id = ? AND filled_at IS NULL`, chapterID)
	if err != nil {
		return fmt.Errorf("failed to invalidate gaps: %w", err)
	}
	return nil
}

func (c *Client) GetOpenGaps(chapterID string) ([]models.KnowledgeGap, error) {
	rows, err := c.db.Query(`
		SELECT id, chapter_id, gap_type, description, confidence, priority_score, auto_fillable, created_at
		FROM knowledge_gaps
		WHERE chapter_id = ? AND filled_at IS NULL
		ORDER BY priority_score * confidence DESC`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge gaps: %w", err)
	}
	defer rows.Close()

	var gaps []models.KnowledgeGap
	for rows.Next() {
		var g models.KnowledgeGap
		var autoFillable int
		var created int64
		err := rows.Scan(&g.ID, &g.ChapterID, &g.GapType, &g.Description, &g.Confidence,
			&g.PriorityScore, &autoFillable, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge gap: %w", err)
		}
		g.AutoFillable = autoFillable == 1
		g.CreatedAt = time.Unix(created, 0)
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// ReplaceCitationEdges swaps a chapter's outgoing edges wholesale. Edge
// recomputation always produces the full set, so no diffing is needed.
func (c *Client) ReplaceCitationEdges(sourceID string, edges []models.CitationEdge) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM citation_edges WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete old edges: %w", err)
	}

	for _, e := range edges {
		_, err := tx.Exec(`
			INSERT INTO citation_edges (source_id, target_id, citation_type, strength, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.SourceID, e.TargetID, e.CitationType, e.Strength, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
	}

	return tx.Commit()
}

func (c *Client) GetCitationEdges(chapterID string) ([]models.CitationEdge, error) {
	rows, err := c.db.Query(`
		SELECT id, source_id, target_id, citation_type, strength, created_at
		FROM citation_edges WHERE source_id = ? OR target_id = ?`, chapterID, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query citation edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (c *Client) GetAllCitationEdges() ([]models.CitationEdge, error) {
	rows, err := c.db.Query(`
		SELECT id, source_id, target_id, citation_type, strength, created_at
		FROM citation_edges`)
	if err != nil {
		return nil, fmt.Errorf("failed to query citation edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]models.CitationEdge, error) {
	var edges []models.CitationEdge
	for rows.Next() {
		var e models.CitationEdge
		var created int64
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.CitationType, &e.Strength, &created); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (c *Client) InsertMergeRecord(m *models.MergeRecord) error {
	_, err := c.db.Exec(`
		INSERT INTO merge_records
		(id, chapter_id, user_id, original_excerpt, new_excerpt, resulting_text, strategy,
		 confidence, applied, content_growth, term_density, readability, completeness, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChapterID, m.UserID, m.OriginalExcerpt, m.NewExcerpt, m.ResultingText,
		m.Strategy, m.Confidence, boolToInt(m.Applied), m.ContentGrowth, m.TermDensity,
		m.Readability, m.Completeness, m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert merge record: %w", err)
	}
	return nil
}

func (c *Client) GetMergeRecords(chapterID string, limit int) ([]models.MergeRecord, error) {
	rows, err := c.db.Query(`
		SELECT id, chapter_id, user_id, original_excerpt, new_excerpt, resulting_text, strategy,
		       confidence, applied, content_growth, term_density, readability, completeness, created_at
		FROM merge_records WHERE chapter_id = ? ORDER BY created_at DESC LIMIT ?`,
		chapterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge records: %w", err)
	}
	defer rows.Close()

	var records []models.MergeRecord
	for rows.Next() {
		var m models.MergeRecord
		var applied int
		var created int64
		err := rows.Scan(&m.ID, &m.ChapterID, &m.UserID, &m.OriginalExcerpt, &m.NewExcerpt,
			&m.ResultingText, &m.Strategy, &m.Confidence, &applied, &m.ContentGrowth,
			&m.TermDensity, &m.Readability, &m.Completeness, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge record: %w", err)
		}
		m.Applied = applied == 1
		m.CreatedAt = time.Unix(created, 0)
		records = append(records, m)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
