package db

// Messages are stored fully materialized: the sanitized HTML body and the
// attachment payloads live in the database, so a record survives the source
// mailbox deleting the original.
const schema = `
-- Ingested messages
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT UNIQUE NOT NULL,
    subject TEXT,
    email_from TEXT,
    email_to TEXT,           -- Comma-separated formatted addresses
    email_cc TEXT,           -- Cc header, same format
    recipients TEXT,         -- To + Cc + Resent-To + Resent-Cc, deduplicated
    body_html TEXT,
    date DATETIME,
    in_reply_to TEXT,        -- Message-ID of the parent message (for threading)
    thread_references TEXT,  -- Raw References header (conversation ancestry)
    parent_id INTEGER,       -- Resolved parent row, NULL when the parent is unknown
    bounced_email TEXT,      -- Normalized Final-Recipient when this is a DSN
    bounced_message_id TEXT, -- Message-ID of the bounced original
    account_id INTEGER,
    fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(parent_id) REFERENCES messages(id),
    FOREIGN KEY(account_id) REFERENCES accounts(id)
);

-- Attachments (payload included; cid links inline images to the body)
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    content BLOB,
    cid TEXT,
    size INTEGER,
    FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
);

-- Mailbox accounts to poll
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    server_type TEXT NOT NULL,      -- 'pop' or 'imap'
    server TEXT NOT NULL,
    port INTEGER NOT NULL,
    is_ssl BOOLEAN DEFAULT 1,
    username TEXT NOT NULL,
    password TEXT NOT NULL,
    active BOOLEAN DEFAULT 1,
    priority INTEGER DEFAULT 5,     -- Lower fetches first
    attach BOOLEAN DEFAULT 1,       -- Keep attachments
    keep_original BOOLEAN DEFAULT 0, -- Store the raw source as an attachment
    target_model TEXT DEFAULT 'message', -- Record type the router files messages under
    last_fetch_date DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Settings table (schema version, last run bookkeeping)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
CREATE INDEX IF NOT EXISTS idx_messages_in_reply_to ON messages(in_reply_to);
CREATE INDEX IF NOT EXISTS idx_messages_parent_id ON messages(parent_id);
CREATE INDEX IF NOT EXISTS idx_messages_account_id ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id);
CREATE INDEX IF NOT EXISTS idx_accounts_priority ON accounts(priority);
`
