package sqlinline

const QGetLedgerCursor = `--sql 1f61b09b-fb2d-4dd4-93f7-e3df3d7de784
select ledger_index from ledger_cursors where name = $1::text;
`

const QUpsertLedgerCursor = `--sql e546e646-f41d-4715-a2b8-e76826bd2cc2
insert into ledger_cursors(name, ledger_index, updated_at)
values ($1::text, $2::bigint, now())
on conflict (name) do update
set ledger_index = excluded.ledger_index, updated_at = excluded.updated_at;
`

const QPing = `--sql 06def057-105c-476b-b73a-cbde7d7fc7f2
select 1;
`
