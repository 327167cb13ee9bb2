// -----------------------------------------------------------------------
// Runtime wires the four pipeline stages - crawl, download, extract, rename -
// onto their own goqite-backed queue and worker pool, driven off Catalog
// state rather than any in-memory queue of its own, so a restart resumes
// exactly where the prior run left off.
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
	"github.com/ternarybob/nyushi/internal/models"
	"github.com/ternarybob/nyushi/internal/queue"
)

// defaultPollSchedule fires dispatchOnce every 30s when Pipeline.PollSchedule
// is left blank or fails to parse.
const defaultPollSchedule = "@every 30s"

// Runtime owns the four stage queues/worker pools and the dispatch loop that
// feeds TaskQ from SyncDetector.
type Runtime struct {
	logger arbor.ILogger
	config *common.Config

	catalog    interfaces.Catalog
	blob       interfaces.Blob
	crawler    interfaces.Crawler
	downloader interfaces.Downloader
	extractor  interfaces.Extractor
	renamer    interfaces.Renamer
	detector   interfaces.SyncDetector

	taskQueue    *queue.Manager
	fileQueue    *queue.Manager
	extractQueue *queue.Manager
	renameQueue  *queue.Manager

	taskPool    *queue.WorkerPool
	filePool    *queue.WorkerPool
	extractPool *queue.WorkerPool
	renamePool  *queue.WorkerPool

	// inFlight bounds how many messages may sit enqueued-but-undelivered per
	// stage, giving Enqueue backpressure instead of an unbounded goqite table.
	taskInFlight    chan struct{}
	fileInFlight    chan struct{}
	extractInFlight chan struct{}
	renameInFlight  chan struct{}

	taskLocksMu sync.Mutex
	taskLocks   map[string]*sync.Mutex

	sched  *cron.Cron
	runCtx context.Context

	cancel context.CancelFunc
}

// NewRuntime builds a Runtime over already-constructed adapters. db is the
// Catalog's shared *sql.DB handle, used to open the four goqite queues.
func NewRuntime(
	logger arbor.ILogger,
	cfg *common.Config,
	db *sql.DB,
	catalog interfaces.Catalog,
	blob interfaces.Blob,
	crawler interfaces.Crawler,
	downloader interfaces.Downloader,
	extractor interfaces.Extractor,
	renamer interfaces.Renamer,
	detector interfaces.SyncDetector,
) (*Runtime, error) {
	taskQueue, err := queue.NewManager(db, queue.TaskQueueName)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open task queue: %w", err)
	}
	fileQueue, err := queue.NewManager(db, queue.FileQueueName)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open file queue: %w", err)
	}
	extractQueue, err := queue.NewManager(db, queue.ExtractQueueName)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open extract queue: %w", err)
	}
	renameQueue, err := queue.NewManager(db, queue.RenameQueueName)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open rename queue: %w", err)
	}

	r := &Runtime{
		logger:       logger,
		config:       cfg,
		catalog:      catalog,
		blob:         blob,
		crawler:      crawler,
		downloader:   downloader,
		extractor:    extractor,
		renamer:      renamer,
		detector:     detector,
		taskQueue:    taskQueue,
		fileQueue:    fileQueue,
		extractQueue: extractQueue,
		renameQueue:  renameQueue,
		taskLocks:    make(map[string]*sync.Mutex),
	}

	r.taskInFlight = make(chan struct{}, inFlightCap(cfg.Crawl.Workers, cfg.Pipeline.QueueCapacity))
	r.fileInFlight = make(chan struct{}, inFlightCap(cfg.Download.Workers, cfg.Pipeline.QueueCapacity))
	r.extractInFlight = make(chan struct{}, inFlightCap(cfg.Extract.Workers, cfg.Pipeline.QueueCapacity))
	r.renameInFlight = make(chan struct{}, inFlightCap(cfg.Rename.Workers, cfg.Pipeline.QueueCapacity))

	r.taskPool = queue.NewWorkerPool(taskQueue, r.handleCrawlBody, poolConfig(cfg.Crawl.Workers, cfg.Crawl.RequestTimeout), logger)
	r.filePool = queue.NewWorkerPool(fileQueue, r.handleFileBody, poolConfig(cfg.Download.Workers, cfg.Download.Timeout), logger)
	r.extractPool = queue.NewWorkerPool(extractQueue, r.handleExtractBody, poolConfig(cfg.Extract.Workers, cfg.Extract.Timeout), logger)
	r.renamePool = queue.NewWorkerPool(renameQueue, r.handleRenameBody, poolConfig(cfg.Rename.Workers, cfg.Rename.Timeout), logger)

	schedule := cfg.Pipeline.PollSchedule
	if schedule == "" {
		schedule = defaultPollSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		logger.Warn().Str("schedule", schedule).Err(err).Msg("invalid pipeline poll_schedule, falling back to default")
		schedule = defaultPollSchedule
	}

	r.sched = cron.New()
	if _, err := r.sched.AddFunc(schedule, func() {
		if r.runCtx == nil {
			return
		}
		common.SafeGo(logger, "dispatch-poll", func() {
			r.dispatchOnce(r.runCtx)
		})
	}); err != nil {
		return nil, fmt.Errorf("pipeline: schedule dispatch poll: %w", err)
	}

	return r, nil
}

// inFlightCap sizes a stage's bounded in-flight semaphore at 2x its worker
// count, falling back to the run-scoped queue_capacity knob when workers<=0.
func inFlightCap(workers, fallback int) int {
	if workers > 0 {
		return workers * 2
	}
	if fallback > 0 {
		return fallback
	}
	return 16
}

func poolConfig(workers int, timeoutStr string) queue.Config {
	cfg := queue.NewDefaultConfig()
	cfg.Concurrency = workers
	if workers <= 0 {
		cfg.Concurrency = 1
	}
	cfg.PollInterval = 1 * time.Second
	if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
		cfg.VisibilityTimeout = d + 30*time.Second
	}
	return cfg
}

// Run starts every stage's worker pool plus the cron-scheduled dispatch poll
// that asks SyncDetector for pending seeds, then resumes in-progress
// tasks/files left over from a prior crash before blocking until ctx is
// cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.runCtx = ctx

	r.taskPool.Start()
	r.filePool.Start()
	r.extractPool.Start()
	r.renamePool.Start()

	if err := r.resume(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("resume pass failed, continuing with fresh dispatch")
	}

	// Run one dispatch pass immediately rather than waiting for the first
	// cron trigger, so a fresh start doesn't sit idle for a full period.
	r.dispatchOnce(ctx)
	r.sched.Start()

	<-ctx.Done()
	return nil
}

// Shutdown stops the cron dispatch poll and every stage's worker pool, then
// waits for any in-flight cron job to return. Each pool's Stop cancels its
// handlers' context and waits only briefly, so an in-flight handler may be
// cut off mid-item; anything left undeleted is redelivered next run.
func (r *Runtime) Shutdown() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.sched.Stop().Done()
	r.taskPool.Stop()
	r.filePool.Stop()
	r.extractPool.Stop()
	r.renamePool.Stop()
}

func (r *Runtime) dispatchOnce(ctx context.Context) {
	kind := models.SeedKind(r.config.Pipeline.KindFilter)

	seeds, err := r.detector.Detect(ctx, interfaces.DetectOptions{
		IncludeFailed:  r.config.Pipeline.IncludeFailed,
		IncludeChanged: r.config.Pipeline.IncludeChanged,
		KindFilter:     kind,
		BatchSize:      r.config.Pipeline.BatchSize,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("sync detection failed")
		return
	}

	for _, seed := range seeds {
		taskID, err := r.catalog.UpsertTask(ctx, seed.SourceID, seed.URL, seed.SchoolName, seed.Kind)
		if err != nil {
			r.logger.Warn().Err(err).Int64("source_id", seed.SourceID).Msg("failed to upsert task for seed")
			continue
		}
		if err := r.enqueueTask(ctx, taskID); err != nil {
			r.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to enqueue task")
		}
	}
}

func (r *Runtime) enqueueTask(ctx context.Context, taskID string) error {
	select {
	case r.taskInFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.taskQueue.Enqueue(ctx, queue.TaskMessage{TaskID: taskID})
}

func (r *Runtime) enqueueFile(ctx context.Context, fileID string) error {
	select {
	case r.fileInFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.fileQueue.Enqueue(ctx, queue.FileMessage{FileID: fileID})
}

func (r *Runtime) enqueueExtract(ctx context.Context, fileID string) error {
	select {
	case r.extractInFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.extractQueue.Enqueue(ctx, queue.ExtractMessage{FileID: fileID})
}

func (r *Runtime) enqueueRename(ctx context.Context, fileID string) error {
	select {
	case r.renameInFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.renameQueue.Enqueue(ctx, queue.RenameMessage{FileID: fileID})
}

// resume re-enqueues work a prior run left mid-flight: Tasks stuck in
// crawling with no files yet, and Files whose download or process status
// never reached a terminal state.
func (r *Runtime) resume(ctx context.Context) error {
	crawling, err := r.catalog.ListTasksByStatus(ctx, models.TaskStatusCrawling, 1000)
	if err != nil {
		return fmt.Errorf("list crawling tasks: %w", err)
	}
	for _, t := range crawling {
		if err := r.enqueueTask(ctx, t.TaskID); err != nil {
			r.logger.Warn().Err(err).Str("task_id", t.TaskID).Msg("failed to resume crawling task")
		}
	}

	pendingDownloads, err := r.catalog.GetFilesByStatus(ctx, models.DownloadStatusPending, 10000)
	if err != nil {
		return fmt.Errorf("list pending downloads: %w", err)
	}
	for _, f := range pendingDownloads {
		if err := r.enqueueFile(ctx, f.FileID); err != nil {
			r.logger.Warn().Err(err).Str("file_id", f.FileID).Msg("failed to resume pending download")
		}
	}

	downloading, err := r.catalog.GetFilesByStatus(ctx, models.DownloadStatusDownloading, 10000)
	if err != nil {
		return fmt.Errorf("list in-flight downloads: %w", err)
	}
	for _, f := range downloading {
		if err := r.enqueueFile(ctx, f.FileID); err != nil {
			r.logger.Warn().Err(err).Str("file_id", f.FileID).Msg("failed to resume in-flight download")
		}
	}

	processing, err := r.catalog.ListTasksByStatus(ctx, models.TaskStatusProcess, 1000)
	if err != nil {
		return fmt.Errorf("list processing tasks: %w", err)
	}
	for _, t := range processing {
		pending, err := r.catalog.GetPendingProcessFiles(ctx, t.TaskID)
		if err != nil {
			r.logger.Warn().Err(err).Str("task_id", t.TaskID).Msg("failed to list pending process files")
			continue
		}
		for _, f := range pending {
			if err := r.enqueueExtract(ctx, f.FileID); err != nil {
				r.logger.Warn().Err(err).Str("file_id", f.FileID).Msg("failed to resume pending extract")
			}
		}
	}

	return nil
}

func (r *Runtime) lockForTask(taskID string) *sync.Mutex {
	r.taskLocksMu.Lock()
	defer r.taskLocksMu.Unlock()
	m, ok := r.taskLocks[taskID]
	if !ok {
		m = &sync.Mutex{}
		r.taskLocks[taskID] = m
	}
	return m
}

func blobTextKey(taskID, fileID string) string {
	return fmt.Sprintf("task_%s/text/%s.txt", taskID, fileID)
}

func blobRawKeyPrefix(taskID string) string {
	return fmt.Sprintf("task_%s/raw", taskID)
}

// -----------------------------------------------------------------------
// Stage handlers - each decodes its stage-specific message from the raw
// queue body, so queue.WorkerPool stays generic across all four stages.
// -----------------------------------------------------------------------

func (r *Runtime) handleCrawlBody(ctx context.Context, body []byte) error {
	var msg queue.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode task message: %w", err)
	}
	return r.escalateIfFatal(r.handleCrawl(ctx, msg.TaskID))
}

func (r *Runtime) handleFileBody(ctx context.Context, body []byte) error {
	var msg queue.FileMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode file message: %w", err)
	}
	<-r.fileInFlight
	return r.escalateIfFatal(r.handleDownload(ctx, msg.FileID))
}

func (r *Runtime) handleExtractBody(ctx context.Context, body []byte) error {
	var msg queue.ExtractMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode extract message: %w", err)
	}
	<-r.extractInFlight
	return r.escalateIfFatal(r.handleExtract(ctx, msg.FileID))
}

func (r *Runtime) handleRenameBody(ctx context.Context, body []byte) error {
	var msg queue.RenameMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode rename message: %w", err)
	}
	<-r.renameInFlight
	return r.escalateIfFatal(r.handleRename(ctx, msg.FileID))
}

// escalateIfFatal lets transient CatalogErrors fall through for goqite
// redelivery, same as any other handler error, but a non-retryable one
// (a constraint violation, a missing table, a corrupted database file)
// means the catalog itself can no longer be trusted: cancel runCtx so
// Run returns and the caller tears the runtime down, rather than let every
// worker spin on the same doomed operation until its messages dead-letter.
func (r *Runtime) escalateIfFatal(err error) error {
	var catErr *CatalogError
	if errors.As(err, &catErr) && !catErr.Retryable {
		r.logger.Error().Err(err).Str("op", catErr.Op).Msg("non-retryable catalog error, beginning graceful shutdown")
		if r.cancel != nil {
			r.cancel()
		}
	}
	return err
}

// handleCrawl runs the bounded BFS+prune pass for one task, persists the
// discovered tree, creates a File row per surviving file node, and advances
// the task into the download phase.
func (r *Runtime) handleCrawl(ctx context.Context, taskID string) error {
	<-r.taskInFlight

	task, err := r.catalog.GetTask(ctx, taskID)
	if err != nil {
		return newCatalogError("get_task", err)
	}
	if task == nil {
		r.logger.Warn().Str("task_id", taskID).Msg("crawl message for unknown task, dropping")
		return nil
	}
	if task.Status != models.TaskStatusPending && task.Status != models.TaskStatusCrawling {
		return nil // already past this stage, nothing to do
	}

	if err := r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusCrawling, models.TaskStatusPatch{}); err != nil {
		return newCatalogError("update_task_status", err)
	}

	result, err := r.crawler.Crawl(ctx, task.SourceURL, r.config.Crawl.MaxDepth, string(task.Kind))
	if err != nil {
		errMsg := err.Error()
		_ = r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusFailed, models.TaskStatusPatch{Error: &errMsg})
		return fmt.Errorf("crawl task %s: %w", taskID, err)
	}

	nodes := make([]*models.Node, 0, len(result.Nodes))
	for _, cn := range result.Nodes {
		nodes = append(nodes, &models.Node{
			TaskID:        taskID,
			NodeIndex:     cn.NodeIndex,
			ParentIndex:   cn.ParentIndex,
			Depth:         cn.Depth,
			Title:         cn.Title,
			Breadcrumb:    cn.Breadcrumb,
			URL:           cn.URL,
			ParentTitle:   cn.ParentTitle,
			IsFile:        cn.IsFile,
			FileExtension: cn.FileExtension,
		})
	}

	if len(nodes) == 0 {
		errMsg := "no reachable content"
		return r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusFailed, models.TaskStatusPatch{Error: &errMsg})
	}

	if err := r.catalog.BatchInsertNodes(ctx, taskID, nodes); err != nil {
		return newCatalogError("batch_insert_nodes", err)
	}
	if err := r.catalog.MarkNodesPruned(ctx, taskID, result.PrunedIndices); err != nil {
		return newCatalogError("mark_nodes_pruned", err)
	}

	r.persistVisualization(ctx, taskID, models.VisualizationRaw, result.RawHTML)
	r.persistVisualization(ctx, taskID, models.VisualizationPruned, result.PrunedHTML)

	retained, err := r.catalog.GetFileNodes(ctx, taskID, true)
	if err != nil {
		return newCatalogError("get_file_nodes", err)
	}

	fileCount := 0
	if r.config.Download.Enabled {
		for _, n := range retained {
			fileID, err := r.catalog.CreateFileRecord(ctx, taskID, n.NodeID, n.URL, path.Base(n.URL), n.FileExtension)
			if err != nil {
				r.logger.Warn().Err(err).Str("node_id", n.NodeID).Msg("failed to create file record")
				continue
			}
			fileCount++
			if err := r.enqueueFile(ctx, fileID); err != nil {
				r.logger.Warn().Err(err).Str("file_id", fileID).Msg("failed to enqueue file for download")
			}
		}
	}

	nodeCount := len(nodes)
	prunedCount := len(result.PrunedIndices)
	patch := models.TaskStatusPatch{NodeCount: &nodeCount, PrunedCount: &prunedCount, FileCount: &fileCount}

	if fileCount == 0 {
		return r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusCompleted, patch)
	}
	return r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusDownload, patch)
}

func (r *Runtime) persistVisualization(ctx context.Context, taskID string, kind models.VisualizationKind, html string) {
	if html == "" {
		return
	}
	key := fmt.Sprintf("task_%s/visualization_%s.html", taskID, kind)
	storageKey, err := r.blob.Put(ctx, key, []byte(html), "text/html")
	if err != nil {
		r.logger.Warn().Err(err).Str("task_id", taskID).Str("kind", string(kind)).Msg("failed to store visualization")
		return
	}
	if err := r.catalog.UpsertVisualization(ctx, taskID, kind, storageKey); err != nil {
		r.logger.Warn().Err(err).Str("task_id", taskID).Str("kind", string(kind)).Msg("failed to record visualization")
	}
}

// handleDownload fetches one File's bytes into Blob, idempotent on a File
// already in a terminal download state (crash-resumption redelivery).
func (r *Runtime) handleDownload(ctx context.Context, fileID string) error {
	file, err := r.catalog.GetFile(ctx, fileID)
	if err != nil {
		return newCatalogError("get_file", err)
	}
	if file == nil {
		r.logger.Warn().Str("file_id", fileID).Msg("download message for unknown file, dropping")
		return nil
	}
	if file.IsTerminalDownload() {
		return r.afterDownloadSettled(ctx, file)
	}

	if err := r.catalog.UpdateFileDownload(ctx, fileID, models.DownloadStatusDownloading, "", nil, ""); err != nil {
		return newCatalogError("update_file_download", err)
	}

	result, err := r.downloader.Download(ctx, file.OriginalURL, blobRawKeyPrefix(file.TaskID), file.OriginalName)
	if err != nil {
		return fmt.Errorf("download file %s: %w", fileID, err)
	}
	if !result.OK {
		errMsg := ""
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
		if err := r.catalog.UpdateFileDownload(ctx, fileID, models.DownloadStatusFailed, "", nil, errMsg); err != nil {
			return newCatalogError("update_file_download", err)
		}
		return r.maybeAdvanceTask(ctx, file.TaskID)
	}

	if err := r.catalog.UpdateFileDownload(ctx, fileID, models.DownloadStatusCompleted, result.StorageKey, &result.Size, ""); err != nil {
		return newCatalogError("update_file_download", err)
	}
	if err := r.maybeAdvanceTask(ctx, file.TaskID); err != nil {
		return err
	}

	return r.enqueueExtract(ctx, fileID)
}

// afterDownloadSettled handles redelivery of a message whose File already
// reached a terminal download status: completed files still need their
// extract step re-enqueued if it was never kicked off.
func (r *Runtime) afterDownloadSettled(ctx context.Context, file *models.File) error {
	if file.DownloadStatus == models.DownloadStatusCompleted && file.ProcessStatus == models.ProcessStatusPending {
		return r.enqueueExtract(ctx, file.FileID)
	}
	return nil
}

// maybeAdvanceTask transitions a task from "downloaded" into "processing"
// once every one of its files has reached a terminal download status.
func (r *Runtime) maybeAdvanceTask(ctx context.Context, taskID string) error {
	files, err := r.catalog.GetFilesByTask(ctx, taskID)
	if err != nil {
		return newCatalogError("get_files_by_task", err)
	}
	for _, f := range files {
		if !f.IsTerminalDownload() {
			return nil
		}
	}

	task, err := r.catalog.GetTask(ctx, taskID)
	if err != nil {
		return newCatalogError("get_task", err)
	}
	if task == nil || task.Status != models.TaskStatusDownload {
		return nil
	}
	return r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusProcess, models.TaskStatusPatch{})
}

// handleExtract pulls a downloaded file's bytes out of Blob, extracts text,
// and stores it back to Blob under a text/ key for the rename stage to read -
// Files carries only a canonical name and LLM audit fields, no text column.
func (r *Runtime) handleExtract(ctx context.Context, fileID string) error {
	file, err := r.catalog.GetFile(ctx, fileID)
	if err != nil {
		return newCatalogError("get_file", err)
	}
	if file == nil {
		r.logger.Warn().Str("file_id", fileID).Msg("extract message for unknown file, dropping")
		return nil
	}
	if file.IsTerminalProcess() {
		return nil
	}
	if file.DownloadStatus != models.DownloadStatusCompleted {
		return nil // not ready yet, will be redelivered once download settles
	}

	data, err := r.blob.Get(ctx, file.StorageKey)
	if err != nil {
		if failErr := r.catalog.UpdateFileProcessFailed(ctx, fileID, fmt.Sprintf("%s: %v", ErrExtraction, err)); failErr != nil {
			return newCatalogError("update_file_process_failed", failErr)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}

	result, err := r.extractor.Extract(ctx, data, file.FileExtension)
	if err != nil {
		if failErr := r.catalog.UpdateFileProcessFailed(ctx, fileID, fmt.Sprintf("%s: %v", ErrExtraction, err)); failErr != nil {
			return newCatalogError("update_file_process_failed", failErr)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}

	if _, err := r.blob.Put(ctx, blobTextKey(file.TaskID, fileID), []byte(result.Text), "text/plain"); err != nil {
		if failErr := r.catalog.UpdateFileProcessFailed(ctx, fileID, fmt.Sprintf("%s: %v", ErrExtraction, err)); failErr != nil {
			return newCatalogError("update_file_process_failed", failErr)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}

	return r.enqueueRename(ctx, fileID)
}

// handleRename asks the Renamer for a structured name and persists it, or,
// when the rename stage is disabled, marks the file processed with an empty
// canonical name.
func (r *Runtime) handleRename(ctx context.Context, fileID string) error {
	file, err := r.catalog.GetFile(ctx, fileID)
	if err != nil {
		return newCatalogError("get_file", err)
	}
	if file == nil {
		r.logger.Warn().Str("file_id", fileID).Msg("rename message for unknown file, dropping")
		return nil
	}
	if file.IsTerminalProcess() {
		return nil
	}

	if !r.config.Rename.Enabled {
		if err := r.catalog.UpdateFileRenamed(ctx, fileID, "", "", 0, ""); err != nil {
			return newCatalogError("update_file_renamed", err)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}

	text, err := r.blob.Get(ctx, blobTextKey(file.TaskID, fileID))
	if err != nil {
		if failErr := r.catalog.UpdateFileProcessFailed(ctx, fileID, fmt.Sprintf("%s: %v", ErrRename, err)); failErr != nil {
			return newCatalogError("update_file_process_failed", failErr)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}

	node, err := r.catalog.GetNode(ctx, file.NodeID)
	if err != nil {
		return newCatalogError("get_node", err)
	}
	task, err := r.catalog.GetTask(ctx, file.TaskID)
	if err != nil {
		return newCatalogError("get_task", err)
	}

	rnCtx := interfaces.RenameContext{
		URL:          file.OriginalURL,
		OriginalName: file.OriginalName,
	}
	if node != nil {
		rnCtx.Breadcrumb = node.Breadcrumb
		rnCtx.ParentTitle = node.ParentTitle
	}
	if task != nil {
		rnCtx.SchoolName = task.SchoolName
	}

	result, err := r.renamer.Rename(ctx, string(text), rnCtx)
	if err != nil {
		if failErr := r.catalog.UpdateFileProcessFailed(ctx, fileID, fmt.Sprintf("%s: %v", ErrRename, err)); failErr != nil {
			return newCatalogError("update_file_process_failed", failErr)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}
	if result.Err != nil {
		if failErr := r.catalog.UpdateFileProcessFailed(ctx, fileID, fmt.Sprintf("%s: %v", ErrRename, result.Err)); failErr != nil {
			return newCatalogError("update_file_process_failed", failErr)
		}
		return r.maybeFinishTask(ctx, file.TaskID)
	}

	if err := r.catalog.UpdateFileRenamed(ctx, fileID, result.Name, r.config.Claude.Model, result.Confidence, result.RawResponse); err != nil {
		return newCatalogError("update_file_renamed", err)
	}

	return r.maybeFinishTask(ctx, file.TaskID)
}

// maybeFinishTask is called after every file reaches a terminal process
// status. It is guarded by a per-task mutex so two files finishing close
// together can't both observe GetPendingProcessFiles as empty and run the
// Unknown-imputation pass twice.
func (r *Runtime) maybeFinishTask(ctx context.Context, taskID string) error {
	lock := r.lockForTask(taskID)
	lock.Lock()
	defer lock.Unlock()

	pending, err := r.catalog.GetPendingProcessFiles(ctx, taskID)
	if err != nil {
		return newCatalogError("get_pending_process_files", err)
	}
	if len(pending) > 0 {
		return nil
	}

	if err := r.imputeUnknowns(ctx, taskID); err != nil {
		r.logger.Warn().Err(err).Str("task_id", taskID).Msg("unknown-imputation pass failed")
	}

	return r.catalog.UpdateTaskStatus(ctx, taskID, models.TaskStatusCompleted, models.TaskStatusPatch{})
}

// imputeUnknowns re-reads every File of the task and, for each of the
// imputable name positions (university, department, major), rewrites any
// file whose renamed_name carries the literal Unknown placeholder there to
// the most common non-Unknown value among its siblings - a document that
// came back "Unknown" in isolation is often inferable once the whole task's
// other documents agree on an answer.
func (r *Runtime) imputeUnknowns(ctx context.Context, taskID string) error {
	files, err := r.catalog.GetFilesByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get files by task: %w", err)
	}

	positions := models.ImputablePositions()
	counts := make([]map[string]int, len(positions))
	for i := range counts {
		counts[i] = make(map[string]int)
	}

	parsed := make(map[string][8]string, len(files))
	for _, f := range files {
		parts, ok := splitNameFields(f.RenamedName)
		if !ok {
			continue
		}
		parsed[f.FileID] = parts
		for i, pos := range positions {
			if v := parts[pos]; v != "" && v != models.UnknownField {
				counts[i][v]++
			}
		}
	}

	mode := make([]string, len(positions))
	for i, c := range counts {
		best := ""
		bestCount := 0
		for v, n := range c {
			if n > bestCount {
				best, bestCount = v, n
			}
		}
		mode[i] = best
	}

	for _, f := range files {
		parts, ok := parsed[f.FileID]
		if !ok {
			continue
		}
		changed := false
		for i, pos := range positions {
			if parts[pos] == models.UnknownField && mode[i] != "" {
				parts[pos] = mode[i]
				changed = true
			}
		}
		if !changed {
			continue
		}
		ext := strings.TrimPrefix(path.Ext(f.RenamedName), ".")
		newName := strings.Join(parts[:], "_")
		if ext != "" {
			newName = newName + "." + ext
		}
		confidence := 0.0
		if f.LLMConfidence != nil {
			confidence = *f.LLMConfidence
		}
		if err := r.catalog.UpdateFileRenamed(ctx, f.FileID, newName, f.LLMModel, confidence, f.LLMRawResponse); err != nil {
			r.logger.Warn().Err(err).Str("file_id", f.FileID).Msg("failed to persist imputed name")
		}
	}

	return nil
}

// splitNameFields parses a renamed_name stem back into the eight-position
// schema. Returns ok=false for anything that isn't exactly 8 underscore-
// separated components (a file never reached the rename stage, or the
// rename stage was disabled and left the name blank).
func splitNameFields(renamedName string) ([8]string, bool) {
	var out [8]string
	if renamedName == "" {
		return out, false
	}
	stem := strings.TrimSuffix(renamedName, path.Ext(renamedName))
	parts := strings.Split(stem, "_")
	if len(parts) != 8 {
		return out, false
	}
	copy(out[:], parts)
	return out, true
}
