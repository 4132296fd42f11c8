package domain

import "time"

// Artifact — именованный результат успешного job.
//
// Создаётся только для job в статусе SUCCESS.
type Artifact struct {
	// JobID — job, который объявил артефакт.
	JobID string `json:"job_id"`

	// Name — имя артефакта.
	Name string `json:"name"`

	// Path — исходный путь или glob.
	Path string `json:"path"`

	// Handle — ссылка, возвращённая хранилищем. Nil, если хранилище не настроено.
	Handle *ArtifactHandle `json:"handle,omitempty"`

	// RecordedAt — время записи.
	RecordedAt time.Time `json:"recorded_at"`
}

// Key возвращает ключ артефакта (job, имя).
func (a *Artifact) Key() ArtifactKey {
	return ArtifactKey{JobID: a.JobID, Name: a.Name}
}

// ArtifactKey — уникальный ключ артефакта в рамках выполнения.
type ArtifactKey struct {
	JobID string
	Name  string
}

// String возвращает ключ в виде "job/name".
func (k ArtifactKey) String() string {
	return k.JobID + "/" + k.Name
}

// ArtifactHandle — ссылка на сохранённый артефакт во внешнем хранилище.
type ArtifactHandle struct {
	// URI — адрес артефакта (file://..., s3://...).
	URI string `json:"uri"`

	// Digest — sha256 содержимого.
	Digest string `json:"digest,omitempty"`

	// Size — суммарный размер в байтах.
	Size int64 `json:"size"`

	// Files — число сохранённых файлов.
	Files int `json:"files"`
}
