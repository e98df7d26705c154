package jobs

import "time"

func (j *RetentionJob) SetBatching(size int, pause time.Duration) {
	j.batchSize = size
	j.batchPause = pause
}
