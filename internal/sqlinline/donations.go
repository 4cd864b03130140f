package sqlinline

const QInsertDonationRequest = `--sql d927797a-508a-46c6-a35c-fdfb9b6c7c16
insert into donation_requests(correlation_token, requester_id, minimum_amount, referral_attribution, status, received_amount, created_at, expires_at)
values ($1::text, $2::text, $3::text::numeric, $4::text, 'PENDING', 0, $5::timestamptz, $6::timestamptz);
`

const QGetDonationRequest = `--sql 75f624af-2e73-4fb9-a057-1c95c92d7544
select correlation_token, requester_id, minimum_amount::text, referral_attribution, status,
       received_amount::text, coalesce(credited_tx_id, ''), created_at, expires_at, verified_at
from donation_requests
where correlation_token = $1::text;
`

const QLockDonationRequest = `--sql 540a6836-afdb-49ba-a9c6-56d6c8b18dcd
select correlation_token, requester_id, minimum_amount::text, referral_attribution, status,
       received_amount::text, coalesce(credited_tx_id, ''), created_at, expires_at, verified_at
from donation_requests
where correlation_token = $1::text
for update;
`

const QExpireDonationRequest = `--sql 1f290e2e-d8bd-4ca9-815b-ff35f948a2dc
update donation_requests
set status = 'EXPIRED'
where correlation_token = $1::text
  and status = 'PENDING'
  and expires_at < $2::timestamptz;
`

const QExpireOverdueRequests = `--sql 17d5a3e2-62b5-45cb-8d76-f28977daa513
with overdue as (
  select correlation_token
  from donation_requests
  where status = 'PENDING' and expires_at < $1::timestamptz
  order by expires_at
  limit $2::int
  for update skip locked
)
update donation_requests d
set status = 'EXPIRED'
from overdue
where d.correlation_token = overdue.correlation_token
returning d.correlation_token, d.requester_id, d.minimum_amount::text, d.referral_attribution, d.status,
          d.received_amount::text, coalesce(d.credited_tx_id, ''), d.created_at, d.expires_at, d.verified_at;
`

const QMarkRequestVerified = `--sql d470594f-8a0d-4184-a1f7-ce293f802441
update donation_requests
set status = 'VERIFIED',
    received_amount = $2::text::numeric,
    credited_tx_id = $3::text,
    verified_at = $4::timestamptz
where correlation_token = $1::text and status = 'PENDING';
`

const QAccumulateReceived = `--sql ed195180-84a5-4b38-9dc6-e26a0ed77aa4
update donation_requests
set received_amount = $2::text::numeric
where correlation_token = $1::text and status = 'PENDING';
`

const QListUnpaidReferrals = `--sql 40c92f10-8ad3-447c-95b6-52a04637b903
select d.correlation_token, d.requester_id, d.minimum_amount::text, d.referral_attribution, d.status,
       d.received_amount::text, coalesce(d.credited_tx_id, ''), d.created_at, d.expires_at, d.verified_at
from donation_requests d
where d.status = 'VERIFIED'
  and d.referral_attribution <> ''
  and not exists (select 1 from referral_payouts p where p.correlation_token = d.correlation_token)
order by d.verified_at
limit $1::int;
`

const QInsertProcessedTransaction = `--sql 7426963c-2663-4449-b17c-3a601e4feb14
insert into processed_transactions(tx_id, correlation_token, amount, ledger_index, tx_index, processed_at)
values ($1::text, $2::text, $3::text::numeric, $4::bigint, $5::bigint, $6::timestamptz)
on conflict (tx_id) do nothing;
`

const QIsTransactionProcessed = `--sql 93aa4dcc-a942-4291-a3c9-a8c4888dde58
select exists(select 1 from processed_transactions where tx_id = $1::text);
`
