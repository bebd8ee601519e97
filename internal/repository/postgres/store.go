package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/pipeline"
)

// Store implements pipeline.Store against PostgreSQL.
type Store struct{ db *sql.DB }

// NewStore creates a Postgres-backed pipeline store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const leadColumns = `lead_id, company_name, website_url, contact_email, channel,
	       COALESCE(niche,''), COALESCE(location,''), COALESCE(notes,''),
	       status, COALESCE(disqualify_reason,''), booked_at,
	       COALESCE(outcome,''), COALESCE(outcome_notes,''), created_at, updated_at`

func scanLead(row interface{ Scan(...interface{}) error }) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := row.Scan(
		&l.ID, &l.CompanyName, &l.WebsiteURL, &l.ContactEmail, &l.Channel,
		&l.Niche, &l.Location, &l.Notes,
		&l.Status, &l.DisqualifyReason, &l.BookedAt,
		&l.Outcome, &l.OutcomeNotes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Store) GetLead(ctx context.Context, leadID string) (*domain.Lead, error) {
	lead, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE lead_id = $1`, leadID))
	if err == sql.ErrNoRows {
		return nil, pipeline.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

func (s *Store) FindLeadByWebsite(ctx context.Context, websiteURL string) (*domain.Lead, error) {
	lead, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE website_url = $1`, websiteURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find lead by website: %w", err)
	}
	return lead, nil
}

func (s *Store) CreateLeadAndJob(ctx context.Context, lead *domain.Lead, job *domain.Job, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leads
				(lead_id, company_name, website_url, contact_email, channel,
				 niche, location, notes, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		`, lead.ID, lead.CompanyName, lead.WebsiteURL, lead.ContactEmail, lead.Channel,
			lead.Niche, lead.Location, lead.Notes, lead.Status)
		if err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO pipeline_jobs (job_id, job_type, lead_id, status, attempts, created_at)
			VALUES ($1, $2, $3, $4, 0, NOW())
		`, job.ID, job.Type, job.LeadID, job.Status)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) UpdateLead(ctx context.Context, lead *domain.Lead, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := updateLeadTx(ctx, tx, lead); err != nil {
			return err
		}
		return insertAudits(ctx, tx, audits)
	})
}

// updateLeadTx refuses to move a dead or disqualified lead back to an
// active status. Suppression and disqualification are monotone; a
// concurrent kill committed between pipeline stages must win, so the
// status column itself gates the write.
func updateLeadTx(ctx context.Context, tx *sql.Tx, lead *domain.Lead) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE leads
		SET status = $1, disqualify_reason = $2, booked_at = $3,
		    outcome = $4, outcome_notes = $5, updated_at = NOW()
		WHERE lead_id = $6
		  AND (status NOT IN ('dead','disqualified') OR status = $1)
	`, lead.Status, nullStr(string(lead.DisqualifyReason)), lead.BookedAt,
		nullStr(string(lead.Outcome)), lead.OutcomeNotes, lead.ID)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE lead_id = $1)`, lead.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return pipeline.ErrLeadNotFound
	}
	return pipeline.ErrLeadTerminal
}

func (s *Store) GetSignals(ctx context.Context, leadID string) (*domain.SignalSet, error) {
	sig := &domain.SignalSet{}
	var samples []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT lead_id, COALESCE(detected_platform,''), COALESCE(site_excerpt,''),
		       categories, sample_products, brand_mentions_raw,
		       sku_count_estimate, price_range_min, price_range_max,
		       map_text_found, COALESCE(map_text_excerpt,''), private_label_ratio,
		       brand_list, COALESCE(price_tier,''), scale_score, map_behavior_score,
		       store_count, COALESCE(scrape_artifact_path,''),
		       COALESCE(scrape_artifact_hash,''), created_at, updated_at
		FROM lead_signals
		WHERE lead_id = $1
	`, leadID).Scan(
		&sig.LeadID, &sig.DetectedPlatform, &sig.SiteExcerpt,
		pq.Array(&sig.Categories), &samples, pq.Array(&sig.BrandMentionsRaw),
		&sig.SKUEstimate, &sig.PriceRangeMin, &sig.PriceRangeMax,
		&sig.MAPTextFound, &sig.MAPTextExcerpt, &sig.PrivateLabelRatio,
		pq.Array(&sig.BrandList), &sig.PriceTier, &sig.ScaleScore, &sig.MAPBehaviorScore,
		&sig.StoreCount, &sig.ArtifactPath, &sig.ArtifactHash, &sig.CreatedAt, &sig.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get signals: %w", err)
	}
	if err := unmarshalInto(samples, &sig.SampleProducts); err != nil {
		return nil, fmt.Errorf("decode sample products: %w", err)
	}
	return sig, nil
}

func (s *Store) CreateScrapeJob(ctx context.Context, scrape *domain.ScrapeJob, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scrape_jobs
				(scrape_id, lead_id, job_id, status, pages_fetched, budget_ms, max_pages, created_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6, NOW())
		`, scrape.ID, scrape.LeadID, scrape.JobID, scrape.Status, scrape.BudgetMS, scrape.MaxPages)
		if err != nil {
			return fmt.Errorf("insert scrape job: %w", err)
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) SaveSignals(ctx context.Context, signals *domain.SignalSet, scrape *domain.ScrapeJob, audits []*domain.AuditEntry) error {
	samples, err := marshalJSON(signals.SampleProducts)
	if err != nil {
		return fmt.Errorf("encode sample products: %w", err)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lead_signals
				(lead_id, detected_platform, site_excerpt, categories, sample_products,
				 brand_mentions_raw, sku_count_estimate, price_range_min, price_range_max,
				 map_text_found, map_text_excerpt, private_label_ratio,
				 scrape_artifact_path, scrape_artifact_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
			ON CONFLICT (lead_id) DO UPDATE SET
				detected_platform = $2, site_excerpt = $3, categories = $4,
				sample_products = $5, brand_mentions_raw = $6, sku_count_estimate = $7,
				price_range_min = $8, price_range_max = $9, map_text_found = $10,
				map_text_excerpt = $11, private_label_ratio = $12,
				scrape_artifact_path = $13, scrape_artifact_hash = $14, updated_at = NOW()
		`, signals.LeadID, signals.DetectedPlatform, signals.SiteExcerpt,
			pq.Array(signals.Categories), samples, pq.Array(signals.BrandMentionsRaw),
			signals.SKUEstimate, signals.PriceRangeMin, signals.PriceRangeMax,
			signals.MAPTextFound, signals.MAPTextExcerpt, signals.PrivateLabelRatio,
			signals.ArtifactPath, signals.ArtifactHash)
		if err != nil {
			return fmt.Errorf("upsert signals: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE scrape_jobs SET status = $1, pages_fetched = $2, error = $3
			WHERE scrape_id = $4
		`, scrape.Status, scrape.PagesFetched, nullStr(scrape.Error), scrape.ID)
		if err != nil {
			return fmt.Errorf("finalize scrape job: %w", err)
		}

		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) SaveClassification(ctx context.Context, signals *domain.SignalSet, qual *domain.Qualification, lead *domain.Lead, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE lead_signals
			SET brand_list = $1, price_tier = $2, scale_score = $3,
			    map_behavior_score = $4, store_count = $5,
			    private_label_ratio = $6, updated_at = NOW()
			WHERE lead_id = $7
		`, pq.Array(signals.BrandList), signals.PriceTier, signals.ScaleScore,
			signals.MAPBehaviorScore, signals.StoreCount, signals.PrivateLabelRatio,
			signals.LeadID)
		if err != nil {
			return fmt.Errorf("merge classified signals: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO qualifications
				(lead_id, qualifies, disqualify_reason, call_id, schema_version, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (lead_id) DO UPDATE SET
				qualifies = $2, disqualify_reason = $3, call_id = $4,
				schema_version = $5, created_at = NOW()
		`, qual.LeadID, qual.Qualifies, nullStr(string(qual.DisqualifyReason)),
			qual.CallID, qual.SchemaVersion)
		if err != nil {
			return fmt.Errorf("upsert qualification: %w", err)
		}

		if err := updateLeadTx(ctx, tx, lead); err != nil {
			return err
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) ActiveRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, priority, is_active, channel_match, min_scale_score,
		       max_private_label_ratio, min_map_behavior_score, min_store_count,
		       requires_brand_overlap, requires_adjacent_brands,
		       primary_angle, COALESCE(secondary_angle,''), item_query, COALESCE(description,'')
		FROM leverage_rules
		WHERE is_active = true
		ORDER BY priority ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var r domain.Rule
		var channelMatch sql.NullString
		var itemQuery []byte
		if err := rows.Scan(
			&r.ID, &r.Priority, &r.Active, &channelMatch, &r.MinScaleScore,
			&r.MaxPrivateLabelRatio, &r.MinMAPBehaviorScore, &r.MinStoreCount,
			&r.RequiresBrandOverlap, &r.RequiresAdjacentBrand,
			&r.PrimaryAngle, &r.SecondaryAngle, &itemQuery, &r.Description,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if channelMatch.Valid {
			ch := domain.Channel(channelMatch.String)
			r.ChannelMatch = &ch
		}
		if len(itemQuery) > 0 {
			r.ItemQuery = &domain.ItemQuery{}
			if err := unmarshalInto(itemQuery, r.ItemQuery); err != nil {
				return nil, fmt.Errorf("decode item query for %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ActiveItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_name, categories, pct_off_retail, mov,
		       lead_time_min, lead_time_max, COALESCE(origin,''), channel_fit,
		       replenishable, priority, COALESCE(notes,''), active, updated_at
		FROM catalog_items
		WHERE active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		var it domain.Item
		var channelFit []string
		if err := rows.Scan(
			&it.ID, &it.Name, pq.Array(&it.Categories), &it.PctOffRetail, &it.MinOrderValue,
			&it.LeadTimeMin, &it.LeadTimeMax, &it.Origin, pq.Array(&channelFit),
			&it.Replenishable, &it.Priority, &it.Notes, &it.Active, &it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.ChannelFit = toChannels(channelFit)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) ItemNames(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_name FROM catalog_items WHERE item_id = ANY($1)
	`, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("load item names: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]string, len(itemIDs))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan item name: %w", err)
		}
		byID[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve selection order.
	var names []string
	for _, id := range itemIDs {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Store) GetLeverage(ctx context.Context, leadID string) (*domain.LeverageAssignment, error) {
	a := &domain.LeverageAssignment{}
	var matchedRuleID sql.NullString
	var itemQuery []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT lead_id, primary_angle, COALESCE(secondary_angle,''), matched_rule_id,
		       match_reason, item_query, selected_item_ids, created_at, updated_at
		FROM leverage_assignments
		WHERE lead_id = $1
	`, leadID).Scan(
		&a.LeadID, &a.PrimaryAngle, &a.SecondaryAngle, &matchedRuleID,
		&a.MatchReason, &itemQuery, pq.Array(&a.SelectedItems), &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leverage: %w", err)
	}
	if matchedRuleID.Valid {
		a.MatchedRuleID = &matchedRuleID.String
	}
	if len(itemQuery) > 0 {
		a.ItemQuery = &domain.ItemQuery{}
		if err := unmarshalInto(itemQuery, a.ItemQuery); err != nil {
			return nil, fmt.Errorf("decode item query: %w", err)
		}
	}
	return a, nil
}

func (s *Store) SaveLeverage(ctx context.Context, assignment *domain.LeverageAssignment, lead *domain.Lead, audits []*domain.AuditEntry) error {
	itemQuery, err := marshalJSON(assignment.ItemQuery)
	if err != nil {
		return fmt.Errorf("encode item query: %w", err)
	}
	var matchedRuleID sql.NullString
	if assignment.MatchedRuleID != nil {
		matchedRuleID = nullStr(*assignment.MatchedRuleID)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leverage_assignments
				(lead_id, primary_angle, secondary_angle, matched_rule_id,
				 match_reason, item_query, selected_item_ids, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			ON CONFLICT (lead_id) DO UPDATE SET
				primary_angle = $2, secondary_angle = $3, matched_rule_id = $4,
				match_reason = $5, item_query = $6, selected_item_ids = $7,
				updated_at = NOW()
		`, assignment.LeadID, assignment.PrimaryAngle, nullStr(string(assignment.SecondaryAngle)),
			matchedRuleID, assignment.MatchReason, itemQuery, pq.Array(assignment.SelectedItems))
		if err != nil {
			return fmt.Errorf("upsert leverage: %w", err)
		}

		if err := updateLeadTx(ctx, tx, lead); err != nil {
			return err
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) CreateMessageJobs(ctx context.Context, jobs []*domain.MessageJob, lead *domain.Lead, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, job := range jobs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO message_jobs
					(job_id, lead_id, sequence_id, touch_number, email_type,
					 subject, body, status, scheduled_at, error, reply_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			`, job.ID, job.LeadID, job.SequenceID, job.TouchNumber, job.Type,
				job.Subject, job.Body, job.Status, job.ScheduledAt,
				nullStr(job.Error), nullStr(job.ReplyID))
			if err != nil {
				return fmt.Errorf("insert message job touch %d: %w", job.TouchNumber, err)
			}
		}

		if err := updateLeadTx(ctx, tx, lead); err != nil {
			return err
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) CreateReply(ctx context.Context, reply *domain.Reply, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO replies
				(reply_id, lead_id, email_job_id, raw_text, provider_message_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, reply.ID, reply.LeadID, nullStr(reply.MessageJobID), reply.RawText,
			nullStr(reply.ProviderMessageID))
		if err != nil {
			return fmt.Errorf("insert reply: %w", err)
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) GetReply(ctx context.Context, replyID string) (*domain.Reply, error) {
	r := &domain.Reply{}
	err := s.db.QueryRowContext(ctx, `
		SELECT reply_id, lead_id, COALESCE(email_job_id,''), raw_text,
		       COALESCE(provider_message_id,''), COALESCE(classification,''),
		       COALESCE(objection_type,''), COALESCE(action,''), interest_level,
		       COALESCE(draft_response,''), COALESCE(draft_approved,''),
		       response_sent, COALESCE(call_id,''), created_at
		FROM replies
		WHERE reply_id = $1
	`, replyID).Scan(
		&r.ID, &r.LeadID, &r.MessageJobID, &r.RawText,
		&r.ProviderMessageID, &r.Classification,
		&r.ObjectionType, &r.Action, &r.InterestLevel,
		&r.DraftResponse, &r.Approval, &r.ResponseSent, &r.CallID, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, pipeline.ErrReplyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reply: %w", err)
	}
	return r, nil
}

func (s *Store) FinalizeReply(ctx context.Context, reply *domain.Reply, lead *domain.Lead, pausePending bool, approvalThreshold int, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		// The approval counter must be read in the same transaction that
		// stores the draft, or two concurrent replies could both land on
		// the threshold boundary.
		if reply.DraftResponse != "" {
			var drafted int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM replies
				WHERE draft_response IS NOT NULL AND draft_response <> '' AND reply_id <> $1
			`, reply.ID).Scan(&drafted)
			if err != nil {
				return fmt.Errorf("count drafted replies: %w", err)
			}
			if drafted+1 <= approvalThreshold {
				reply.Approval = domain.ApprovalPending
			} else {
				reply.Approval = domain.ApprovalApproved
			}
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE replies
			SET classification = $1, objection_type = $2, action = $3,
			    interest_level = $4, draft_response = $5, draft_approved = $6,
			    call_id = $7
			WHERE reply_id = $8
		`, reply.Classification, nullStr(reply.ObjectionType), reply.Action,
			reply.InterestLevel, nullStr(reply.DraftResponse), nullStr(string(reply.Approval)),
			nullStr(reply.CallID), reply.ID)
		if err != nil {
			return fmt.Errorf("finalize reply: %w", err)
		}

		if pausePending {
			_, err = tx.ExecContext(ctx, `
				UPDATE message_jobs SET status = 'paused'
				WHERE lead_id = $1 AND status IN ('queued','rendered')
			`, lead.ID)
			if err != nil {
				return fmt.Errorf("pause message jobs: %w", err)
			}
		}

		if err := updateLeadTx(ctx, tx, lead); err != nil {
			return err
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) SetReplyApproval(ctx context.Context, reply *domain.Reply, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE replies SET draft_approved = $1 WHERE reply_id = $2
		`, reply.Approval, reply.ID)
		if err != nil {
			return fmt.Errorf("set reply approval: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return pipeline.ErrReplyNotFound
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) ObjectionTemplates(ctx context.Context) ([]domain.ObjectionTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT objection_type, pattern_keywords, COALESCE(template_subject,''),
		       template_body, is_active, version, updated_at
		FROM objection_templates
		WHERE is_active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("load objection templates: %w", err)
	}
	defer rows.Close()

	var out []domain.ObjectionTemplate
	for rows.Next() {
		var t domain.ObjectionTemplate
		if err := rows.Scan(
			&t.ObjectionType, pq.Array(&t.PatternKeywords), &t.Subject,
			&t.Body, &t.Active, &t.Version, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan objection template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ClaimQueuedJobs(ctx context.Context, limit int, workerID string) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE pipeline_jobs
			SET status = 'running', locked_by = $1, attempts = attempts + 1, started_at = NOW()
			WHERE job_id IN (
				SELECT job_id FROM pipeline_jobs
				WHERE status = 'queued'
				ORDER BY created_at ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING job_id, job_type, lead_id, status, attempts, locked_by, started_at, created_at
		)
		SELECT job_id, job_type, lead_id, status, attempts, locked_by, started_at, created_at
		FROM claimed
	`, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j := &domain.Job{}
		if err := rows.Scan(
			&j.ID, &j.Type, &j.LeadID, &j.Status, &j.Attempts, &j.LockedBy,
			&j.StartedAt, &j.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) CompleteJob(ctx context.Context, job *domain.Job, audits []*domain.AuditEntry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE pipeline_jobs SET status = $1, completed_at = $2, error = $3
			WHERE job_id = $4
		`, job.Status, job.CompletedAt, nullStr(job.Error), job.ID)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		return insertAudits(ctx, tx, audits)
	})
}

func (s *Store) Stats(ctx context.Context) (*domain.PipelineStats, error) {
	stats := &domain.PipelineStats{}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM leads GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.LeadStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan lead stat: %w", err)
		}
		stats.TotalLeads += n
		switch status {
		case domain.LeadNew:
			stats.New = n
		case domain.LeadResearched:
			stats.Researched = n
		case domain.LeadQualified:
			stats.Qualified = n
		case domain.LeadDisqualified:
			stats.Disqualified = n
		case domain.LeadContacted:
			stats.Contacted = n
		case domain.LeadInterested:
			stats.Interested = n
		case domain.LeadObjection:
			stats.Objections = n
		case domain.LeadBooked:
			stats.Booked = n
		case domain.LeadDead:
			stats.Dead = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_jobs WHERE status IN ('sent','delivered')
	`).Scan(&stats.TotalSent)
	if err != nil {
		return nil, fmt.Errorf("sent stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replies`).Scan(&stats.TotalReplies)
	if err != nil {
		return nil, fmt.Errorf("reply stats: %w", err)
	}

	if stats.TotalLeads > 0 {
		stats.ConversionRate = float64(stats.Booked) / float64(stats.TotalLeads)
	}
	return stats, nil
}
