package repository

const (
	videoColumns = `video_id, user_id, status, retry_count, raw_file_path, hls_master_url, thumbnail_url,
					available_qualities, duration, width, height, error_message, created_at, uploaded_at,
					processed_at, deleted_at, deleted_by`

	getVideoByIDQuery = `SELECT ` + videoColumns + ` FROM videos WHERE video_id = $1`

	startProcessingQuery = `UPDATE videos
							SET status = CASE WHEN status IN ('ready', 'partial_ready') THEN status ELSE 'processing' END,
							    retry_count = retry_count + $2,
							    error_message = NULL
							WHERE video_id = $1 AND status <> 'cancelled' AND deleted_at IS NULL
							RETURNING ` + videoColumns

	markVideoFailedQuery = `UPDATE videos
							SET status = CASE WHEN status IN ('ready', 'partial_ready') THEN status ELSE 'failed' END,
							    error_message = CASE WHEN status IN ('ready', 'partial_ready') THEN error_message ELSE $2 END
							WHERE video_id = $1 AND status <> 'cancelled'`

	markVideoCancelledQuery = `UPDATE videos SET status = 'cancelled'
							WHERE video_id = $1 AND status IN ('uploading', 'uploaded', 'processing')`

	finalizeVideoQuery = `UPDATE videos
							SET status = $2,
							    hls_master_url = $3,
							    thumbnail_url = $4,
							    available_qualities = $5,
							    duration = NULLIF($6::DOUBLE PRECISION, 0),
							    width = NULLIF($7::INTEGER, 0),
							    height = NULLIF($8::INTEGER, 0),
							    error_message = $9,
							    processed_at = $10
							WHERE video_id = $1 AND status <> 'cancelled' AND deleted_at IS NULL`

	hasReferencingPostQuery = `SELECT EXISTS (SELECT 1 FROM posts WHERE video_id = $1)`

	softDeleteVideoQuery = `UPDATE videos SET deleted_at = COALESCE(deleted_at, NOW()), deleted_by = COALESCE(deleted_by, $2)
							WHERE video_id = $1`
	restoreVideoQuery = `UPDATE videos SET deleted_at = NULL, deleted_by = NULL
							WHERE video_id = $1 AND deleted_at IS NOT NULL AND deleted_at > $2`

	deleteVideoQualitiesQuery = `DELETE FROM video_qualities WHERE video_id = $1`
	deleteVideoQuery          = `DELETE FROM videos WHERE video_id = $1`

	findPendingProcessingQuery = `SELECT ` + videoColumns + ` FROM videos
							WHERE status IN ('uploading', 'processing') AND retry_count < $1 AND deleted_at IS NULL
							ORDER BY created_at LIMIT $2`
	findOrphanVideosQuery = `SELECT ` + videoColumns + ` FROM videos v
							WHERE v.created_at < $1 AND v.deleted_at IS NULL
							  AND NOT EXISTS (SELECT 1 FROM posts p WHERE p.video_id = v.video_id)
							ORDER BY v.created_at LIMIT $2`
	findSoftDeletedQuery = `SELECT ` + videoColumns + ` FROM videos
							WHERE deleted_at IS NOT NULL AND deleted_at < $1
							ORDER BY deleted_at LIMIT $2`
	findRetryCandidatesQuery = `SELECT ` + videoColumns + ` FROM videos v
							WHERE v.status IN ('partial_ready', 'failed') AND v.deleted_at IS NULL
							  AND EXISTS (SELECT 1 FROM video_qualities q
							              WHERE q.video_id = v.video_id AND q.status = 'failed' AND q.retry_count < $1)
							ORDER BY v.processed_at NULLS FIRST LIMIT $2`
)

const (
	qualityColumns = `video_id, quality, status, retry_count, retry_priority, hls_playlist_path, segments_count,
					error_message, started_at, completed_at`

	upsertPendingQualitiesQuery = `INSERT INTO video_qualities (video_id, quality, status, retry_priority)
							VALUES (:video_id, :quality, :status, :retry_priority)
							ON CONFLICT (video_id, quality) DO NOTHING`

	listQualitiesByVideoQuery = `SELECT ` + qualityColumns + ` FROM video_qualities
							WHERE video_id = $1 ORDER BY retry_priority DESC, quality`

	markQualityProcessingQuery = `UPDATE video_qualities
							SET status = 'processing', started_at = NOW(), completed_at = NULL, error_message = NULL
							WHERE video_id = $1 AND quality = $2`
	markQualityPendingQuery = `UPDATE video_qualities
							SET status = 'pending', started_at = NULL
							WHERE video_id = $1 AND quality = $2 AND status = 'processing'`
	markQualityReadyQuery = `UPDATE video_qualities
							SET status = 'ready', hls_playlist_path = $3, segments_count = $4,
							    error_message = NULL, completed_at = NOW()
							WHERE video_id = $1 AND quality = $2`
	markQualityFailedQuery = `UPDATE video_qualities
							SET status = 'failed', retry_count = retry_count + 1, error_message = $3,
							    hls_playlist_path = NULL, segments_count = NULL, completed_at = NOW()
							WHERE video_id = $1 AND quality = $2`
	resetFailedQualitiesQuery = `UPDATE video_qualities
							SET status = 'pending', error_message = NULL, started_at = NULL, completed_at = NULL
							WHERE video_id = $1 AND status = 'failed' AND retry_count < $2`
)
