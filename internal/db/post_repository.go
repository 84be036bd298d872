package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tOgg1/postview/internal/models"
	"github.com/tOgg1/postview/internal/render"
)

// Post repository errors.
var (
	ErrPostNotFound = errors.New("post not found")
	ErrInvalidPost  = errors.New("invalid post")
)

const postColumns = `site, board, thread_no, post_no, sub_no, name, subject, comment, images_json,
	sticky, closed, archived, deleted, replies, image_replies, posted_at, bumped_at, last_modified`

// selectColumns reads postColumns plus the number of posts quoting each
// row, which is derived from post_replies and never stored.
const selectColumns = postColumns + `,
	(SELECT COUNT(*) FROM post_replies pr
		WHERE pr.site = posts.site AND pr.to_board = posts.board AND pr.to_thread = posts.thread_no
			AND pr.to_post = posts.post_no AND pr.to_sub = posts.sub_no) AS quoted_by`

// PostRepository persists raw posts and the reply graph derived from their
// comment markup. It serves as both the record source and the reply index
// for the parsing pipeline.
type PostRepository struct {
	db     *DB
	policy RetryPolicy
}

// NewPostRepository creates a new PostRepository.
func NewPostRepository(db *DB) *PostRepository {
	return &PostRepository{db: db, policy: DefaultRetryPolicy}
}

// Put upserts records and replaces their outgoing quote edges.
func (r *PostRepository) Put(ctx context.Context, records ...models.RawPostRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := records[i].Descriptor.Validate(); err != nil {
			return fmt.Errorf("%w: records[%d]: %w", ErrInvalidPost, i, err)
		}
	}

	return r.db.TransactionWithRetry(ctx, r.policy, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO posts (`+postColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (site, board, thread_no, post_no, sub_no) DO UPDATE SET
				name = excluded.name,
				subject = excluded.subject,
				comment = excluded.comment,
				images_json = excluded.images_json,
				sticky = excluded.sticky,
				closed = excluded.closed,
				archived = excluded.archived,
				deleted = excluded.deleted,
				replies = excluded.replies,
				image_replies = excluded.image_replies,
				posted_at = excluded.posted_at,
				bumped_at = excluded.bumped_at,
				last_modified = excluded.last_modified
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare post upsert: %w", err)
		}
		defer upsert.Close()

		clearEdges, err := tx.PrepareContext(ctx, `
			DELETE FROM post_replies
			WHERE site = ? AND from_board = ? AND from_thread = ? AND from_post = ? AND from_sub = ?
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare reply cleanup: %w", err)
		}
		defer clearEdges.Close()

		insertEdge, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO post_replies
				(site, from_board, from_thread, from_post, from_sub, to_board, to_thread, to_post, to_sub)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare reply insert: %w", err)
		}
		defer insertEdge.Close()

		for _, rec := range records {
			var imagesJSON sql.NullString
			if len(rec.Images) > 0 {
				data, err := json.Marshal(rec.Images)
				if err != nil {
					return fmt.Errorf("failed to marshal images for %s: %w", rec.Descriptor, err)
				}
				imagesJSON = sql.NullString{String: string(data), Valid: true}
			}

			d := rec.Descriptor
			if _, err := upsert.ExecContext(ctx,
				d.Site, d.Board, d.ThreadNo, d.PostNo, d.SubNo,
				rec.Name, rec.Subject, rec.Comment, imagesJSON,
				boolToInt(rec.Flags.Sticky), boolToInt(rec.Flags.Closed),
				boolToInt(rec.Flags.Archived), boolToInt(rec.Flags.Deleted),
				rec.Replies, rec.ImageReplies,
				formatTime(rec.PostedAt), nullTime(rec.BumpedAt), nullTime(rec.LastModified),
			); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", d, err)
			}

			if _, err := clearEdges.ExecContext(ctx, d.Site, d.Board, d.ThreadNo, d.PostNo, d.SubNo); err != nil {
				return fmt.Errorf("failed to clear replies of %s: %w", d, err)
			}
			for _, q := range render.ExtractQuotes(d, rec.Comment) {
				if q.Site != d.Site || q == d {
					continue
				}
				if _, err := insertEdge.ExecContext(ctx,
					d.Site, d.Board, d.ThreadNo, d.PostNo, d.SubNo,
					q.Board, q.ThreadNo, q.PostNo, q.SubNo,
				); err != nil {
					return fmt.Errorf("failed to record reply %s -> %s: %w", d, q, err)
				}
			}
		}
		return nil
	})
}

// FetchOne returns a single post.
func (r *PostRepository) FetchOne(ctx context.Context, desc models.PostDescriptor) (models.RawPostRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM posts
		WHERE site = ? AND board = ? AND thread_no = ? AND post_no = ? AND sub_no = ?
	`, desc.Site, desc.Board, desc.ThreadNo, desc.PostNo, desc.SubNo)

	rec, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RawPostRecord{}, false, nil
	}
	if err != nil {
		return models.RawPostRecord{}, false, err
	}
	return rec, true, nil
}

// Get is FetchOne with ErrPostNotFound for missing posts.
func (r *PostRepository) Get(ctx context.Context, desc models.PostDescriptor) (models.RawPostRecord, error) {
	rec, ok, err := r.FetchOne(ctx, desc)
	if err != nil {
		return models.RawPostRecord{}, err
	}
	if !ok {
		return models.RawPostRecord{}, fmt.Errorf("%w: %s", ErrPostNotFound, desc)
	}
	return rec, nil
}

// FetchMany returns the posts of descs that belong to chanDescriptor, in the
// requested order. Missing posts are skipped.
func (r *PostRepository) FetchMany(ctx context.Context, chanDescriptor models.ChanDescriptor, descs []models.PostDescriptor) ([]models.RawPostRecord, error) {
	if len(descs) == 0 {
		return nil, nil
	}

	stmt, err := r.db.PrepareContext(ctx, `
		SELECT `+selectColumns+` FROM posts
		WHERE site = ? AND board = ? AND thread_no = ? AND post_no = ? AND sub_no = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare post lookup: %w", err)
	}
	defer stmt.Close()

	out := make([]models.RawPostRecord, 0, len(descs))
	seen := make(map[models.PostDescriptor]struct{}, len(descs))
	for _, d := range descs {
		if !chanDescriptor.Contains(d) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}

		rec, err := scanPost(stmt.QueryRowContext(ctx, d.Site, d.Board, d.ThreadNo, d.PostNo, d.SubNo))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Thread lists every post of a thread in post order, or every original post
// of a board for a catalog descriptor.
func (r *PostRepository) Thread(ctx context.Context, chanDescriptor models.ChanDescriptor) ([]models.RawPostRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch chanDescriptor.Kind {
	case models.ChanThread:
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM posts
			WHERE site = ? AND board = ? AND thread_no = ?
			ORDER BY post_no, sub_no
		`, chanDescriptor.Site, chanDescriptor.Board, chanDescriptor.ThreadNo)
	case models.ChanCatalog:
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM posts
			WHERE site = ? AND board = ? AND post_no = thread_no AND sub_no = 0
			ORDER BY thread_no
		`, chanDescriptor.Site, chanDescriptor.Board)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidDescriptor, chanDescriptor)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", chanDescriptor, err)
	}
	defer rows.Close()

	var out []models.RawPostRecord
	for rows.Next() {
		rec, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RepliesFrom returns the posts quoting desc, in post order.
func (r *PostRepository) RepliesFrom(ctx context.Context, desc models.PostDescriptor) ([]models.PostDescriptor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_board, from_thread, from_post, from_sub FROM post_replies
		WHERE site = ? AND to_board = ? AND to_thread = ? AND to_post = ? AND to_sub = ?
	`, desc.Site, desc.Board, desc.ThreadNo, desc.PostNo, desc.SubNo)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies to %s: %w", desc, err)
	}
	defer rows.Close()

	var out []models.PostDescriptor
	for rows.Next() {
		from := models.PostDescriptor{Site: desc.Site}
		if err := rows.Scan(&from.Board, &from.ThreadNo, &from.PostNo, &from.SubNo); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		out = append(out, from)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, models.ComparePosts)
	return out, nil
}

// RepliesTo returns the union of posts quoted by descs, in post order.
func (r *PostRepository) RepliesTo(ctx context.Context, descs []models.PostDescriptor) ([]models.PostDescriptor, error) {
	if len(descs) == 0 {
		return nil, nil
	}
	stmt, err := r.db.PrepareContext(ctx, `
		SELECT to_board, to_thread, to_post, to_sub FROM post_replies
		WHERE site = ? AND from_board = ? AND from_thread = ? AND from_post = ? AND from_sub = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare quote lookup: %w", err)
	}
	defer stmt.Close()

	set := make(map[models.PostDescriptor]struct{})
	for _, d := range descs {
		if err := collectQuoted(ctx, stmt, d, set); err != nil {
			return nil, err
		}
	}

	out := make([]models.PostDescriptor, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.SortFunc(out, models.ComparePosts)
	return out, nil
}

func collectQuoted(ctx context.Context, stmt *sql.Stmt, from models.PostDescriptor, set map[models.PostDescriptor]struct{}) error {
	rows, err := stmt.QueryContext(ctx, from.Site, from.Board, from.ThreadNo, from.PostNo, from.SubNo)
	if err != nil {
		return fmt.Errorf("failed to query quotes of %s: %w", from, err)
	}
	defer rows.Close()
	for rows.Next() {
		to := models.PostDescriptor{Site: from.Site}
		if err := rows.Scan(&to.Board, &to.ThreadNo, &to.PostNo, &to.SubNo); err != nil {
			return fmt.Errorf("failed to scan quote: %w", err)
		}
		set[to] = struct{}{}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.RawPostRecord, error) {
	var (
		rec                               models.RawPostRecord
		imagesJSON                        sql.NullString
		sticky, closed, archived, deleted int
		postedAt                          string
		bumpedAt, lastModified            sql.NullString
	)
	d := &rec.Descriptor
	if err := row.Scan(
		&d.Site, &d.Board, &d.ThreadNo, &d.PostNo, &d.SubNo,
		&rec.Name, &rec.Subject, &rec.Comment, &imagesJSON,
		&sticky, &closed, &archived, &deleted,
		&rec.Replies, &rec.ImageReplies,
		&postedAt, &bumpedAt, &lastModified,
		&rec.QuotedBy,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan post: %w", err)
	}

	if imagesJSON.Valid && imagesJSON.String != "" {
		if err := json.Unmarshal([]byte(imagesJSON.String), &rec.Images); err != nil {
			return rec, fmt.Errorf("failed to decode images for %s: %w", rec.Descriptor, err)
		}
	}
	rec.Flags = models.PostFlags{Sticky: sticky != 0, Closed: closed != 0, Archived: archived != 0, Deleted: deleted != 0}
	rec.PostedAt = parseTime(postedAt)
	if bumpedAt.Valid {
		rec.BumpedAt = parseTime(bumpedAt.String)
	}
	if lastModified.Valid {
		rec.LastModified = parseTime(lastModified.String)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
