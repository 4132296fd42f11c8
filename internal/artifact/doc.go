// Package artifact записывает артефакты успешных jobs.
//
// Collector вызывается Job Runner'ом только после того, как все шаги job
// завершились успешно. Для каждого ключа (job, имя) запись выполняется
// ровно один раз: записи одного ключа сериализуются, повторная запись
// возвращает ErrAlreadyRecorded.
//
// Хранение выполняет внешний Sink:
//   - FileSink — копирует файлы в локальную директорию
//   - S3Sink   — загружает файлы в S3 bucket
//   - Scoped   — добавляет префикс run к ключам любого Sink
//
// Ошибка Sink возвращается как *StorageError и не оставляет записи
// в Collector. Job Runner превращает её в предупреждение.
package artifact
