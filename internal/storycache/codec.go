package storycache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"novel-client/internal/models"
)

// encodeStories сериализует список историй в JSON-массив.
func encodeStories(stories []models.Story) ([]byte, error) {
	if stories == nil {
		stories = []models.Story{}
	}
	data, err := json.Marshal(stories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stories: %w", err)
	}
	return data, nil
}

// decodeStories читает JSON-массив историй поэлементно.
// Элемент, который не декодируется в Story или не имеет ID, пропускается.
// Если массив оборван (синтаксическая ошибка), возвращается успешно прочитанный префикс.
// Второе значение - число пропущенных или потерянных записей (0 для чистой записи).
func decodeStories(data []byte) ([]models.Story, int) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Story{}, 0
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return []models.Story{}, 1
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return []models.Story{}, 1
	}

	stories := make([]models.Story, 0)
	corrupt := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			// Дальше читать нельзя: сохраняем префикс.
			corrupt++
			return stories, corrupt
		}
		var story models.Story
		if err := json.Unmarshal(raw, &story); err != nil || strings.TrimSpace(story.ID) == "" {
			corrupt++
			continue
		}
		stories = append(stories, story)
	}
	if _, err := dec.Token(); err != nil {
		corrupt++
	}
	return stories, corrupt
}
