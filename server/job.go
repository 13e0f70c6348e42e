package server

import "context"

// RunningJob is a background task that can be asked to stop and then awaited.
type RunningJob struct {
	stop   chan struct{}
	closed chan struct{}
}

func (job *RunningJob) RequestStop() {
	close(job.stop)
}

func (job *RunningJob) AwaitStop() {
	<-job.closed
}

func SpawnJob(start func(), shutdown func()) RunningJob {
	stop := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		<-stop
		shutdown()
		close(closed)
	}()
	go start()
	return RunningJob{stop: stop, closed: closed}
}

// SpawnContextJob runs fn until the job is stopped, then waits for fn to return.
func SpawnContextJob(fn func(ctx context.Context)) RunningJob {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	return SpawnJob(
		func() {
			defer close(done)
			fn(ctx)
		},
		func() {
			cancel()
			<-done
		},
	)
}

// CombineJobs stops every job on RequestStop and returns once all have stopped.
func CombineJobs(jobs ...RunningJob) RunningJob {
	shutdown := func() {
		for _, job := range jobs {
			job.RequestStop()
		}
		for _, job := range jobs {
			job.AwaitStop()
		}
	}
	return SpawnJob(func() {}, shutdown)
}
