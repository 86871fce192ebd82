package outbox

const badgeEarnedSchema = `{
  "type": "object",
  "title": "BadgeEarned",
  "properties": {
    "user_id": {"type": "string"},
    "code": {"type": "string"},
    "title": {"type": "string"},
    "earned_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "code", "earned_at"],
  "additionalProperties": false
}`

const notificationCreatedSchema = `{
  "type": "object",
  "title": "NotificationCreated",
  "properties": {
    "notification_id": {"type": "string"},
    "user_id": {"type": "string"},
    "type": {"type": "string"},
    "title": {"type": "string"},
    "body": {"type": "string"},
    "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["notification_id", "user_id", "type", "title", "created_at"],
  "additionalProperties": false
}`
