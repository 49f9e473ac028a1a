package service

import (
	"context"
	"sync"
	"time"

	"myreprise-chatbot-go/internal/model"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
)

// LearningTask 是一次异步偏好学习任务。
type LearningTask struct {
	UserID  string
	Signals model.InteractionSignals
}

// LearningWorker 用有界队列和固定数量的 goroutine 执行偏好学习。
// 队列满时直接丢弃任务，不阻塞对话请求。
type LearningWorker struct {
	profiles ProfileService
	tasks    chan LearningTask
	workers  int
	timeout  time.Duration

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	start   sync.Once
}

// NewLearningWorker 创建学习任务队列。
func NewLearningWorker(profiles ProfileService, queueSize, workers int) *LearningWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	return &LearningWorker{
		profiles: profiles,
		tasks:    make(chan LearningTask, queueSize),
		workers:  workers,
		timeout:  10 * time.Second,
	}
}

// Start 启动后台 goroutine，重复调用无效。
func (w *LearningWorker) Start() {
	w.start.Do(func() {
		for i := 0; i < w.workers; i++ {
			w.wg.Add(1)
			go w.run()
		}
		log.Infof("[LearningWorker] 已启动 %d 个学习协程", w.workers)
	})
}

func (w *LearningWorker) run() {
	defer w.wg.Done()
	for task := range w.tasks {
		w.handle(task)
	}
}

func (w *LearningWorker) handle(task LearningTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[LearningWorker] 学习任务 panic: user=%s, %v", task.UserID, r)
			metrics.LearningTasksTotal.WithLabelValues("failed").Inc()
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.profiles.Learn(ctx, task.UserID, task.Signals); err != nil {
		log.Warnf("[LearningWorker] 学习任务失败: user=%s, error: %v", task.UserID, err)
		metrics.LearningTasksTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.LearningTasksTotal.WithLabelValues("done").Inc()
}

// Submit 投递任务，队列已满或已停止时返回 false。
func (w *LearningWorker) Submit(task LearningTask) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		metrics.LearningTasksTotal.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case w.tasks <- task:
		metrics.LearningTasksTotal.WithLabelValues("queued").Inc()
		return true
	default:
		log.Warnf("[LearningWorker] 学习队列已满, 丢弃任务: user=%s", task.UserID)
		metrics.LearningTasksTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Stop 停止接收新任务，并等待队列中的任务处理完毕或 ctx 超时。
func (w *LearningWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.tasks)
	}
	w.mu.Unlock()

	w.Start()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("[LearningWorker] 学习队列已清空")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
