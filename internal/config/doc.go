// Package config загружает конфигурацию Conveyor.
//
// Источники в порядке приоритета (выше — важнее):
//  1. Флаги командной строки (через BindFlags)
//  2. Переменные окружения CONVEYOR_* (CONVEYOR_EXECUTION_MAX_PARALLEL)
//  3. Файл conveyor.yaml (текущая директория или ~/.conveyor)
//  4. Значения по умолчанию
package config
